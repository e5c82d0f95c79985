package session

import (
	"context"
	"errors"

	"thinkora-client/internal/event"
	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

// Login exchanges identifier and secret for a credential. A credential that
// is already held is discarded first.
func (m *Manager) Login(ctx context.Context, identifier string, secret string) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	opCtx, epoch, done := m.beginAuthenticating(ctx)
	defer done()

	return m.exchange(opCtx, epoch, identifier, secret, nil)
}

// Register creates the account and then signs in with the same email and
// password. When the profile fetch fails the registration fields stand in
// for the profile.
func (m *Manager) Register(ctx context.Context, fields model.RegistrationFields) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	opCtx, epoch, done := m.beginAuthenticating(ctx)
	defer done()

	if err := m.transport.Register(opCtx, fields); err != nil {
		return m.failAuthenticating(epoch, err)
	}

	m.logger.Info("account registered", "username", fields.Username)
	fallback := &model.UserProfile{Username: fields.Username, Email: fields.Email}
	return m.exchange(opCtx, epoch, fields.Email, fields.Password, fallback)
}

// Logout clears the session from any state. It does not wait for an
// in-flight operation; that operation is cancelled and its result dropped.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.epoch++
	m.cancelPendingLocked()
	m.clearLocked()
	m.lastErr = nil
	m.transition(model.StateAnonymous)
	m.unlockAndPublish(event.TypeSessionChanged)
}

func (m *Manager) beginAuthenticating(ctx context.Context) (context.Context, uint64, func()) {
	m.mu.Lock()
	if m.cred != nil {
		m.logger.Info("discarding held credential before authenticating")
		m.epoch++
		m.cancelPendingLocked()
		m.clearLocked()
		m.lastErr = nil
		m.transition(model.StateAnonymous)
		m.unlockAndPublish(event.TypeSessionChanged)
		m.mu.Lock()
	}

	// Entries the manager never loaded (a failed read at start-up) must not
	// leak into the new session.
	m.clearLocked()
	m.epoch++
	epoch := m.epoch
	opCtx, cancel := context.WithCancel(ctx)
	m.cancelPending = cancel
	m.lastErr = nil
	m.transition(model.StateAuthenticating)
	m.unlockAndPublish(event.TypeSessionChanged)

	done := func() {
		cancel()
		m.mu.Lock()
		if m.epoch == epoch {
			m.cancelPending = nil
		}
		m.mu.Unlock()
	}
	return opCtx, epoch, done
}

// exchange requests the token pair, fetches the profile and commits both.
// Nothing is written to the store unless the whole exchange succeeds and
// epoch is still current.
func (m *Manager) exchange(ctx context.Context, epoch uint64, identifier string, secret string, fallback *model.UserProfile) error {
	cred, err := m.transport.RequestToken(ctx, identifier, secret)
	if err != nil {
		return m.failAuthenticating(epoch, err)
	}

	profile := m.fetchProfile(ctx, cred.AccessToken, fallback)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Info("discarding late authentication result")
		return ErrSuperseded
	}

	m.store.Save(cred)
	m.cred = &cred
	if profile != nil {
		m.store.SaveProfile(*profile)
	}
	m.profile = profile
	m.lastErr = nil
	m.transition(model.StateAuthenticated)
	m.unlockAndPublish(event.TypeSessionChanged)
	return nil
}

func (m *Manager) failAuthenticating(epoch uint64, err error) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSuperseded
	}

	if errors.Is(err, context.Canceled) {
		// Abandoned by the caller: back to Anonymous without an error.
		m.lastErr = nil
	} else {
		m.lastErr = apierror.From(err)
	}
	m.transition(model.StateAnonymous)
	m.unlockAndPublish(event.TypeSessionChanged)
	return err
}

// fetchProfile is best effort. Missing fields of the fetched profile are
// filled from fallback; on failure fallback itself is returned.
func (m *Manager) fetchProfile(ctx context.Context, accessToken string, fallback *model.UserProfile) *model.UserProfile {
	profile, err := m.transport.FetchProfile(ctx, accessToken)
	if err != nil {
		m.logger.Warn("profile fetch failed", "error", err)
		return fallback
	}

	if fallback != nil {
		if profile.Username == "" {
			profile.Username = fallback.Username
		}
		if profile.Email == "" {
			profile.Email = fallback.Email
		}
	}
	return &profile
}

func (m *Manager) cancelPendingLocked() {
	if m.cancelPending != nil {
		m.cancelPending()
		m.cancelPending = nil
	}
}

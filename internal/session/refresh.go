package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"thinkora-client/internal/event"
	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

const refreshKey = "refresh"

// AccessToken returns the token to attach to an outgoing request. A token
// known to expire within the refresh skew is renewed first, including after
// an earlier attempt left the session Refreshing; if that renewal fails
// transiently the current token is returned unchanged.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return "", apierror.New(apierror.KindUnauthorized, "", 0)
	}
	token := m.cred.AccessToken
	due := m.state.HoldsCredential() && m.cred.ExpiresWithin(m.now(), m.refreshSkew)
	m.mu.Unlock()

	if !due {
		return token, nil
	}

	fresh, err := m.RequestRefresh(ctx, token)
	switch {
	case err == nil:
		return fresh, nil
	case apierror.Transient(err):
		return token, nil
	default:
		return "", err
	}
}

// Refresh forces a renewal of the current access token.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	stale := ""
	if m.cred != nil {
		stale = m.cred.AccessToken
	}
	m.mu.Unlock()

	if stale == "" {
		return "", apierror.New(apierror.KindUnauthorized, "", 0)
	}
	return m.RequestRefresh(ctx, stale)
}

// RequestRefresh renews the credential on behalf of a caller whose request
// was rejected with staleAccessToken. Concurrent callers share one attempt,
// and a caller whose token was already replaced gets the current token
// without a network call. Each caller stops waiting when its own ctx ends;
// the shared attempt keeps running under the operation timeout.
func (m *Manager) RequestRefresh(ctx context.Context, staleAccessToken string) (string, error) {
	if token, ok := m.alreadyRenewed(staleAccessToken); ok {
		return token, nil
	}

	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		return m.refresh(staleAccessToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) alreadyRenewed(stale string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stale == "" || m.cred == nil || m.state != model.StateAuthenticated {
		return "", false
	}
	if m.cred.AccessToken == stale {
		return "", false
	}
	return m.cred.AccessToken, true
}

func (m *Manager) refresh(stale string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	if err := m.acquire(ctx); err != nil {
		m.metrics.ObserveRefresh("timeout")
		return "", apierror.Wrap(apierror.KindNetworkUnavailable, "", 0, err)
	}
	defer m.release()

	// A login or another refresh may have finished while we queued.
	if token, ok := m.alreadyRenewed(stale); ok {
		m.metrics.ObserveRefresh("coalesced")
		return token, nil
	}

	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return "", apierror.New(apierror.KindUnauthorized, "", 0)
	}
	epoch := m.epoch
	if !m.cred.HasRefreshToken() {
		m.mu.Unlock()
		m.logger.Info("no refresh token held, ending session")
		m.metrics.ObserveRefresh("rejected")
		return "", m.expire(epoch, apierror.New(apierror.KindRefreshRejected, "", 0))
	}

	refreshToken := m.cred.RefreshToken
	opCtx, opCancel := context.WithCancel(ctx)
	defer opCancel()
	m.cancelPending = opCancel
	m.transition(model.StateRefreshing)
	m.unlockAndPublish(event.TypeSessionChanged)

	cred, err := m.transport.RefreshToken(opCtx, refreshToken)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.metrics.ObserveRefresh("superseded")
		return "", ErrSuperseded
	}
	m.cancelPending = nil

	if err != nil {
		if errors.Is(err, apierror.ErrRefreshRejected) || errors.Is(err, apierror.ErrUnauthorized) {
			m.mu.Unlock()
			m.metrics.ObserveRefresh("rejected")
			return "", m.expire(epoch, err)
		}

		// Transient: the credential stays, the session stays Refreshing.
		m.lastErr = apierror.From(err)
		m.logger.Warn("token refresh failed, keeping credential", "error", err)
		m.unlockAndPublish(event.TypeSessionChanged)
		m.metrics.ObserveRefresh("transient")
		return "", err
	}

	m.store.Save(cred)
	m.cred = &cred
	m.lastErr = nil
	needProfile := m.profile == nil
	m.transition(model.StateAuthenticated)
	m.unlockAndPublish(event.TypeSessionChanged)
	m.metrics.ObserveRefresh("success")

	if needProfile {
		m.refreshProfile(opCtx, epoch, cred.AccessToken)
	}
	return cred.AccessToken, nil
}

// expire ends the session after a terminal refresh failure: Expired with
// the store cleared, then Anonymous carrying RefreshRejected.
func (m *Manager) expire(epoch uint64, cause error) error {
	reported := apierror.Wrap(apierror.KindRefreshRejected, "", 0, cause)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.clearLocked()
	m.lastErr = apierror.New(apierror.KindRefreshRejected, "", 0)
	m.transition(model.StateExpired)
	m.unlockAndPublish(event.TypeSessionExpired)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return reported
	}
	m.transition(model.StateAnonymous)
	m.unlockAndPublish(event.TypeSessionChanged)
	return reported
}

func (m *Manager) refreshProfile(ctx context.Context, epoch uint64, accessToken string) {
	profile, err := m.transport.FetchProfile(ctx, accessToken)
	if err != nil {
		m.logger.Debug("profile fetch after refresh failed", "error", err)
		return
	}

	m.mu.Lock()
	if m.epoch != epoch || m.cred == nil || m.cred.AccessToken != accessToken {
		m.mu.Unlock()
		return
	}
	m.store.SaveProfile(profile)
	m.profile = &profile
	m.unlockAndPublish(event.TypeSessionChanged)
}

// Invalidate ends the session when a request replayed with a fresh token
// was still rejected. It is a no-op if the token was replaced meanwhile.
func (m *Manager) Invalidate(staleAccessToken string) {
	m.mu.Lock()
	if m.cred == nil || m.cred.AccessToken != staleAccessToken {
		m.mu.Unlock()
		return
	}

	m.epoch++
	m.cancelPendingLocked()
	m.clearLocked()
	m.lastErr = apierror.New(apierror.KindUnauthorized, "", 0)
	m.transition(model.StateAnonymous)
	m.unlockAndPublish(event.TypeSessionChanged)
}

// StartAutoRefresh renews near-expiry tokens on every tick until ctx is
// cancelled.
func (m *Manager) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.AccessToken(ctx); err != nil && !errors.Is(err, apierror.ErrUnauthorized) {
				m.logger.Debug("background refresh failed", "error", err)
			}
		}
	}
}

// TokenSource adapts the manager to oauth2. Requests made through it get
// proactive renewal but no replay on 401; use the gateway for that.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	access, err := s.m.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	s.m.mu.Lock()
	if s.m.cred != nil && s.m.cred.AccessToken == access {
		token.Expiry = s.m.cred.ExpiresAt
	}
	s.m.mu.Unlock()
	return token, nil
}

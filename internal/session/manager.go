// Package session owns the single authentication state machine of the host.
//
// A Manager holds the current credential and profile, mirrors them into the
// credential store, and publishes a model.Snapshot on every transition.
// Login, Register and refresh are serialized through one operation slot so
// transitions queue instead of interleaving. Logout never waits: it bumps a
// generation counter and any result from an older generation is dropped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"thinkora-client/internal/event"
	"thinkora-client/internal/metrics"
	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

// ErrSuperseded is returned to the caller of an operation whose result was
// discarded because a logout (or another terminal transition) happened
// while it was in flight.
var ErrSuperseded = errors.New("session operation superseded by a later transition")

type Transport interface {
	RequestToken(ctx context.Context, identifier string, secret string) (model.Credential, error)
	RefreshToken(ctx context.Context, refreshToken string) (model.Credential, error)
	Register(ctx context.Context, fields model.RegistrationFields) error
	FetchProfile(ctx context.Context, accessToken string) (model.UserProfile, error)
}

type Store interface {
	Save(cred model.Credential)
	Load() *model.Credential
	Clear()
	SaveProfile(profile model.UserProfile)
	LoadProfile() *model.UserProfile
}

type Manager struct {
	transport Transport
	store     Store
	bus       event.Bus
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	refreshSkew time.Duration
	opTimeout   time.Duration

	slot   chan struct{}
	flight singleflight.Group

	mu            sync.Mutex
	pubMu         sync.Mutex
	state         model.State
	cred          *model.Credential
	profile       *model.UserProfile
	lastErr       *apierror.APIError
	epoch         uint64
	cancelPending context.CancelFunc
}

type Option func(*Manager)

func WithBus(bus event.Bus) Option {
	return func(m *Manager) {
		if bus != nil {
			m.bus = bus
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRefreshSkew sets how long before expiry AccessToken renews proactively.
func WithRefreshSkew(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.refreshSkew = d
		}
	}
}

// WithOperationTimeout bounds a shared refresh attempt, which runs detached
// from any single caller's context.
func WithOperationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.opTimeout = d
		}
	}
}

// NewManager restores the session from store without touching the network:
// a stored credential starts the manager Authenticated.
func NewManager(transport Transport, store Store, opts ...Option) *Manager {
	m := &Manager{
		transport:   transport,
		store:       store,
		bus:         event.NewBus(),
		logger:      slog.Default(),
		now:         time.Now,
		refreshSkew: 30 * time.Second,
		opTimeout:   15 * time.Second,
		slot:        make(chan struct{}, 1),
		state:       model.StateAnonymous,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")

	if cred := store.Load(); cred != nil {
		m.cred = cred
		m.profile = store.LoadProfile()
		m.state = model.StateAuthenticated
		m.logger.Info("session restored from store", "has_profile", m.profile != nil, "has_refresh", cred.HasRefreshToken())
	}

	return m
}

// Snapshot returns the current externally observable view.
func (m *Manager) Snapshot() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn for every snapshot, delivered synchronously and in
// transition order. fn must not call back into the Manager.
func (m *Manager) Subscribe(fn func(model.Snapshot)) func() {
	return m.bus.Listen(func(e event.Event) {
		fn(e.Snapshot)
	})
}

func (m *Manager) snapshotLocked() model.Snapshot {
	snap := model.Snapshot{State: m.state}
	if m.profile != nil {
		p := *m.profile
		snap.User = &p
	}
	if m.lastErr != nil {
		e := *m.lastErr
		snap.LastError = &e
	}
	return snap
}

// transition must be called with mu held.
func (m *Manager) transition(to model.State) {
	from := m.state
	m.state = to
	m.metrics.ObserveTransition(string(from), string(to))

	attrs := []any{"from", from, "to", to}
	if m.lastErr != nil {
		attrs = append(attrs, "last_error", m.lastErr.Kind)
	}
	m.logger.Info("session transition", attrs...)
}

// unlockAndPublish releases mu and publishes the snapshot taken under it.
// pubMu is taken before mu is released so events leave in transition order.
func (m *Manager) unlockAndPublish(t event.Type) {
	snap := m.snapshotLocked()
	m.pubMu.Lock()
	m.mu.Unlock()
	defer m.pubMu.Unlock()

	m.bus.Publish(event.New(t, snap))
}

// clearLocked drops the credential and profile in memory and in the store.
func (m *Manager) clearLocked() {
	m.store.Clear()
	m.cred = nil
	m.profile = nil
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.slot
}

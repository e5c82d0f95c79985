// Package store is the durable mirror of the session credential.
//
// A Backend persists three independently clearable entries per slot: the
// access token, the optional refresh token and the cached profile.
// CredentialStore wraps a Backend with the total contract the session
// manager relies on: its methods never fail, backend errors are logged and
// read as "absent".
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"thinkora-client/internal/model"
)

var ErrUnknownBackend = errors.New("unknown store backend")

// Entries is a consistent read of one slot.
type Entries struct {
	AccessToken  string
	RefreshToken string
	Profile      *model.UserProfile
}

type Backend interface {
	Name() string
	// WriteCredential replaces the token entries. An empty refresh token
	// removes that entry.
	WriteCredential(ctx context.Context, accessToken string, refreshToken string) error
	// WriteProfile stores profile only while an access token entry exists.
	WriteProfile(ctx context.Context, profile model.UserProfile) error
	Read(ctx context.Context) (Entries, error)
	// Clear removes all three entries in one step.
	Clear(ctx context.Context) error
	Close() error
}

type CredentialStore struct {
	backend Backend
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*CredentialStore)

func WithLogger(logger *slog.Logger) Option {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *CredentialStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func New(backend Backend, opts ...Option) *CredentialStore {
	s := &CredentialStore{
		backend: backend,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("store", backend.Name())
	return s
}

// Save persists cred. A credential without an access token is ignored so a
// refresh token is never stored on its own.
func (s *CredentialStore) Save(cred model.Credential) {
	if cred.AccessToken == "" {
		s.logger.Warn("refusing to store credential without access token")
		return
	}

	ctx, cancel := s.context()
	defer cancel()

	if err := s.backend.WriteCredential(ctx, cred.AccessToken, cred.RefreshToken); err != nil {
		s.logger.Error("failed to save credential", "error", err)
	}
}

func (s *CredentialStore) Load() *model.Credential {
	entries, ok := s.read()
	if !ok || entries.AccessToken == "" {
		return nil
	}

	cred := model.NewCredential(entries.AccessToken, entries.RefreshToken, time.Time{})
	return &cred
}

func (s *CredentialStore) Clear() {
	ctx, cancel := s.context()
	defer cancel()

	if err := s.backend.Clear(ctx); err != nil {
		s.logger.Error("failed to clear credential store", "error", err)
	}
}

func (s *CredentialStore) SaveProfile(profile model.UserProfile) {
	ctx, cancel := s.context()
	defer cancel()

	if err := s.backend.WriteProfile(ctx, profile); err != nil {
		s.logger.Error("failed to save profile", "error", err)
	}
}

// LoadProfile returns the cached profile, or nil when no credential is
// stored alongside it.
func (s *CredentialStore) LoadProfile() *model.UserProfile {
	entries, ok := s.read()
	if !ok || entries.AccessToken == "" {
		return nil
	}
	return entries.Profile
}

func (s *CredentialStore) Close() error {
	return s.backend.Close()
}

func (s *CredentialStore) read() (Entries, bool) {
	ctx, cancel := s.context()
	defer cancel()

	entries, err := s.backend.Read(ctx)
	if err != nil {
		s.logger.Error("failed to read credential store", "error", err)
		return Entries{}, false
	}
	return entries, true
}

func (s *CredentialStore) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

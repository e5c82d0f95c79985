package store

import (
	"context"
	"sync"

	"thinkora-client/internal/model"
)

type MemoryBackend struct {
	mu      sync.RWMutex
	entries Entries
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) WriteCredential(_ context.Context, accessToken string, refreshToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries.AccessToken = accessToken
	b.entries.RefreshToken = refreshToken
	return nil
}

func (b *MemoryBackend) WriteProfile(_ context.Context, profile model.UserProfile) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries.AccessToken == "" {
		return nil
	}
	b.entries.Profile = &profile
	return nil
}

func (b *MemoryBackend) Read(_ context.Context) (Entries, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := b.entries
	if out.Profile != nil {
		profile := *out.Profile
		out.Profile = &profile
	}
	return out, nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = Entries{}
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

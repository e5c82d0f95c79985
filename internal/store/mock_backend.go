package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"thinkora-client/internal/model"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Name() string {
	return "mock"
}

func (m *MockBackend) WriteCredential(ctx context.Context, accessToken string, refreshToken string) error {
	args := m.Called(ctx, accessToken, refreshToken)
	return args.Error(0)
}

func (m *MockBackend) WriteProfile(ctx context.Context, profile model.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockBackend) Read(ctx context.Context) (Entries, error) {
	args := m.Called(ctx)
	return args.Get(0).(Entries), args.Error(1)
}

func (m *MockBackend) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"thinkora-client/internal/database"
	"thinkora-client/internal/model"
)

// BackendSuite runs the same contract checks against any Backend.
type BackendSuite struct {
	suite.Suite
	newBackend func(slot string) Backend
	cleanup    func()
}

func (s *BackendSuite) TearDownSuite() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func (s *BackendSuite) TestRoundTripAndClear() {
	ctx := context.Background()
	b := s.newBackend("round-trip")

	require.NoError(s.T(), b.WriteCredential(ctx, "access-1", "refresh-1"))
	require.NoError(s.T(), b.WriteProfile(ctx, model.UserProfile{ID: "1", Username: "sam", Email: "sam@x.com"}))

	entries, err := b.Read(ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "access-1", entries.AccessToken)
	require.Equal(s.T(), "refresh-1", entries.RefreshToken)
	require.NotNil(s.T(), entries.Profile)
	require.Equal(s.T(), "sam", entries.Profile.Username)

	require.NoError(s.T(), b.WriteCredential(ctx, "access-2", ""))
	entries, err = b.Read(ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "access-2", entries.AccessToken)
	require.Empty(s.T(), entries.RefreshToken)
	require.NotNil(s.T(), entries.Profile)

	require.NoError(s.T(), b.Clear(ctx))
	require.NoError(s.T(), b.Clear(ctx))
	entries, err = b.Read(ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), Entries{}, entries)
}

func (s *BackendSuite) TestProfileRequiresCredential() {
	ctx := context.Background()
	b := s.newBackend("profile-guard")

	require.NoError(s.T(), b.WriteProfile(ctx, model.UserProfile{Username: "ghost"}))
	entries, err := b.Read(ctx)
	require.NoError(s.T(), err)
	require.Nil(s.T(), entries.Profile)
}

func (s *BackendSuite) TestSlotsAreIsolated() {
	ctx := context.Background()
	a := s.newBackend("slot-a")
	other := s.newBackend("slot-b")

	require.NoError(s.T(), a.WriteCredential(ctx, "access-a", ""))
	entries, err := other.Read(ctx)
	require.NoError(s.T(), err)
	require.Empty(s.T(), entries.AccessToken)
	require.NoError(s.T(), a.Clear(ctx))
}

func TestPostgresBackendSuite(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("thinkora"),
		tcpostgres.WithUsername("thinkora"),
		tcpostgres.WithPassword("thinkora"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, dsn, 4, 0)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))
	require.NoError(t, db.EnsureSchema(ctx))

	suite.Run(t, &BackendSuite{
		newBackend: func(slot string) Backend { return NewPostgresBackend(db.Pool, slot) },
		cleanup: func() {
			db.Close()
		},
	})
}

func TestRedisBackendSuite(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := database.NewRedis(ctx, addr, 0)
	require.NoError(t, err)

	suite.Run(t, &BackendSuite{
		newBackend: func(slot string) Backend { return NewRedisBackend(client, "test:session", slot) },
		cleanup: func() {
			_ = client.Close()
		},
	})
}


package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thinkora-client/internal/model"
)

// PostgresBackend keeps one client_sessions row per slot. A missing row is
// the Anonymous state.
type PostgresBackend struct {
	pool *pgxpool.Pool
	slot string
}

func NewPostgresBackend(pool *pgxpool.Pool, slot string) *PostgresBackend {
	return &PostgresBackend{pool: pool, slot: slot}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) WriteCredential(ctx context.Context, accessToken string, refreshToken string) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO client_sessions (slot, access_token, refresh_token, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4)
		 ON CONFLICT (slot) DO UPDATE
		 SET access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     updated_at = EXCLUDED.updated_at`,
		b.slot, accessToken, refreshToken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store session credential: %w", err)
	}
	return nil
}

// WriteProfile updates the existing row only, so a profile can never be
// stored without its credential.
func (b *PostgresBackend) WriteProfile(ctx context.Context, profile model.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	_, err = b.pool.Exec(ctx,
		`UPDATE client_sessions SET profile = $2::jsonb, updated_at = $3 WHERE slot = $1`,
		b.slot, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store session profile: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Read(ctx context.Context) (Entries, error) {
	var (
		entries Entries
		refresh *string
		profile []byte
	)
	err := b.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, profile FROM client_sessions WHERE slot = $1`,
		b.slot).Scan(&entries.AccessToken, &refresh, &profile)

	if errors.Is(err, pgx.ErrNoRows) {
		return Entries{}, nil
	}
	if err != nil {
		return Entries{}, fmt.Errorf("read session: %w", err)
	}

	if refresh != nil {
		entries.RefreshToken = *refresh
	}
	if len(profile) > 0 {
		var p model.UserProfile
		if err := json.Unmarshal(profile, &p); err != nil {
			return Entries{}, fmt.Errorf("decode profile: %w", err)
		}
		entries.Profile = &p
	}
	return entries, nil
}

func (b *PostgresBackend) Clear(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM client_sessions WHERE slot = $1`, b.slot)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the database package.
func (b *PostgresBackend) Close() error { return nil }

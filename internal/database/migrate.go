package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/001_client_sessions.up.sql
var clientSessionsSQL string

// EnsureSchema creates the client_sessions table when it is missing.
// The migration uses IF NOT EXISTS so it is safe to re-run.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasTable(ctx, "client_sessions")
	if err != nil {
		return fmt.Errorf("check client_sessions table: %w", err)
	}
	if exists {
		return nil
	}

	slog.Info("applying client_sessions migration (001)")
	if _, err := db.Pool.Exec(ctx, clientSessionsSQL); err != nil {
		return fmt.Errorf("apply client_sessions migration: %w", err)
	}

	return nil
}

func (db *DB) hasTable(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema()
			  AND table_name = $1
		)
	`, name).Scan(&exists)
	return exists, err
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"thinkora-client/internal/model"
)

// RedisBackend keeps the three entries as separate keys under
// <prefix>:<slot>. Multi-key writes run in MULTI/EXEC and reads use MGET,
// so a reader never observes a profile without its credential.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, keyPrefix string, slot string) *RedisBackend {
	return &RedisBackend{client: client, prefix: keyPrefix + ":" + slot}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) accessKey() string  { return b.prefix + ":access_token" }
func (b *RedisBackend) refreshKey() string { return b.prefix + ":refresh_token" }
func (b *RedisBackend) profileKey() string { return b.prefix + ":profile" }

func (b *RedisBackend) WriteCredential(ctx context.Context, accessToken string, refreshToken string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.accessKey(), accessToken, 0)
		if refreshToken == "" {
			pipe.Del(ctx, b.refreshKey())
		} else {
			pipe.Set(ctx, b.refreshKey(), refreshToken, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session credential: %w", err)
	}
	return nil
}

// WriteProfile watches the access token key so the profile is written only
// while a credential exists and no concurrent Clear slipped in.
func (b *RedisBackend) WriteProfile(ctx context.Context, profile model.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	err = b.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, b.accessKey()).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, b.profileKey(), data, 0)
			return nil
		})
		return err
	}, b.accessKey())
	if err != nil {
		return fmt.Errorf("store session profile: %w", err)
	}
	return nil
}

func (b *RedisBackend) Read(ctx context.Context) (Entries, error) {
	values, err := b.client.MGet(ctx, b.accessKey(), b.refreshKey(), b.profileKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entries{}, fmt.Errorf("read session: %w", err)
	}

	var entries Entries
	if len(values) != 3 {
		return entries, nil
	}
	entries.AccessToken, _ = values[0].(string)
	entries.RefreshToken, _ = values[1].(string)
	if raw, ok := values[2].(string); ok && raw != "" {
		var p model.UserProfile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return Entries{}, fmt.Errorf("decode profile: %w", err)
		}
		entries.Profile = &p
	}
	return entries, nil
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	if err := b.client.Del(ctx, b.accessKey(), b.refreshKey(), b.profileKey()).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the composition root.
func (b *RedisBackend) Close() error { return nil }

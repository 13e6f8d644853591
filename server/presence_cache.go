package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceCache mirrors last-seen timestamps into Redis with a TTL equal to
// the freshness window, so online lookups can skip Postgres. Optional: a nil
// cache is ignored everywhere.
type presenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newPresenceCache(url string, ttl time.Duration) (*presenceCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &presenceCache{client: c, ttl: ttl}, nil
}

func presenceKey(userID string) string { return "presence:last_seen:" + userID }

func (c *presenceCache) Set(ctx context.Context, userID string, at time.Time) error {
	return c.client.Set(ctx, presenceKey(userID), at.UTC().Format(time.RFC3339Nano), c.ttl).Err()
}

// Get returns (nil, nil) on a miss.
func (c *presenceCache) Get(ctx context.Context, userID string) (*time.Time, error) {
	res, err := c.client.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, res)
	if err != nil {
		return nil, nil // malformed entry counts as a miss
	}
	return &at, nil
}

func (c *presenceCache) Close() error { return c.client.Close() }

// presenceWriter fans each last-seen write out to Postgres and, when
// configured, the Redis mirror. Postgres is authoritative; mirror failures
// are logged and dropped.
type presenceWriter struct {
	store *Store
	cache *presenceCache
	log   *slog.Logger
}

func (w *presenceWriter) WriteLastSeen(ctx context.Context, userID string, at time.Time) error {
	if err := w.store.UpdateUserLastSeen(ctx, userID, at); err != nil {
		return err
	}
	if w.cache != nil {
		if err := w.cache.Set(ctx, userID, at); err != nil && w.log != nil {
			w.log.Debug("presence cache set failed", "user", userID, "err", err)
		}
	}
	return nil
}

// lastSeenFor prefers the mirror; any cache trouble falls back to the stored
// value.
func (w *presenceWriter) lastSeenFor(ctx context.Context, u *User) *time.Time {
	if w.cache != nil {
		if at, err := w.cache.Get(ctx, u.ID); err == nil && at != nil {
			return at
		}
	}
	return u.LastSeen
}

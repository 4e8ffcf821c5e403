package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/dailycrew/agent/session"
	"github.com/BaSui01/dailycrew/internal/cache"
)

// RedisContextStore keeps contexts in Redis as JSON. Every save refreshes
// the inactivity TTL.
type RedisContextStore struct {
	cache *cache.Manager
	ttl   time.Duration
}

// NewRedisContextStore creates a Redis-backed context store on a shared cache manager
func NewRedisContextStore(m *cache.Manager, config StoreConfig) *RedisContextStore {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = -1
	}
	return &RedisContextStore{cache: m, ttl: ttl}
}

func (s *RedisContextStore) key(userID string) string {
	return "session:" + userID
}

// Close is a no-op; the cache manager is owned by the caller.
func (s *RedisContextStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *RedisContextStore) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// Load implements ContextStore
func (s *RedisContextStore) Load(ctx context.Context, userID string) (*session.Context, error) {
	raw, err := s.cache.Get(ctx, s.key(userID))
	if cache.IsCacheMiss(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session context: %w", err)
	}
	return decode(userID, []byte(raw))
}

// Save implements ContextStore
func (s *RedisContextStore) Save(ctx context.Context, c *session.Context) error {
	if c != nil {
		c.Version++
		c.UpdatedAt = time.Now().UTC()
	}
	raw, err := encode(c)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.key(c.UserID), string(raw), s.ttl); err != nil {
		return fmt.Errorf("save session context: %w", err)
	}
	return nil
}

// Delete implements ContextStore
func (s *RedisContextStore) Delete(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, s.key(userID))
}

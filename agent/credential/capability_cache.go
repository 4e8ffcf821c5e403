package credential

import (
	"context"
	"time"

	"github.com/BaSui01/dailycrew/internal/cache"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

// CapabilityCache 在 Store 前缓存 Has 的布尔结果
type CapabilityCache struct {
	next   Store
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger

	// Recorder 可选，命中类型为 "capability"
	Recorder cache.HitRecorder
}

var _ Store = (*CapabilityCache)(nil)

// NewCapabilityCache 创建能力缓存
func NewCapabilityCache(next Store, m *cache.Manager, ttl time.Duration, logger *zap.Logger) *CapabilityCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityCache{
		next:   next,
		cache:  m,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "credential_cache")),
	}
}

func (c *CapabilityCache) key(userID string, kind types.IntegrationKind) string {
	return "cred:has:" + userID + ":" + string(kind)
}

// Get 直接读取底层存储，凭据原文不缓存
func (c *CapabilityCache) Get(ctx context.Context, userID string, kind types.IntegrationKind) (*Credential, error) {
	return c.next.Get(ctx, userID, kind)
}

// Put 写入后使能力缓存失效
func (c *CapabilityCache) Put(ctx context.Context, userID string, kind types.IntegrationKind, payload Payload) error {
	if err := c.next.Put(ctx, userID, kind, payload); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, c.key(userID, kind)); err != nil {
		c.logger.Warn("failed to invalidate capability",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	return nil
}

// Has 优先读缓存，缓存不可用时回退到底层存储
func (c *CapabilityCache) Has(ctx context.Context, userID string, kind types.IntegrationKind) (bool, error) {
	key := c.key(userID, kind)
	val, err := c.cache.Get(ctx, key)
	if err == nil {
		if c.Recorder != nil {
			c.Recorder.RecordCacheHit("capability")
		}
		return val == "1", nil
	}
	if c.Recorder != nil {
		c.Recorder.RecordCacheMiss("capability")
	}
	if !cache.IsCacheMiss(err) {
		c.logger.Debug("capability cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	ok, err := c.next.Has(ctx, userID, kind)
	if err != nil {
		return false, err
	}
	val = "0"
	if ok {
		val = "1"
	}
	if err := c.cache.Set(ctx, key, val, c.ttl); err != nil {
		c.logger.Debug("capability cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return ok, nil
}

package scheduler

import (
	"context"
	"time"

	"github.com/BaSui01/dailycrew/internal/cache"
)

// Deduper 跨实例去重，Claim 返回 false 表示其他实例已经认领
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDeduper 基于 SET NX 的去重
type RedisDeduper struct {
	cache *cache.Manager
}

// NewRedisDeduper 创建 redis 去重器
func NewRedisDeduper(m *cache.Manager) *RedisDeduper {
	return &RedisDeduper{cache: m}
}

// Claim implements Deduper.
func (d *RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.cache.SetNX(ctx, "scheduler:"+key, "1", ttl)
}

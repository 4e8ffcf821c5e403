package users

import (
	"context"
	"time"

	"github.com/BaSui01/dailycrew/internal/cache"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

// CachedRepository 读穿缓存：Get 优先读 Redis，所有写操作使缓存失效
type CachedRepository struct {
	next   Repository
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger

	// Recorder 可选，命中类型为 "user"
	Recorder cache.HitRecorder
}

// NewCachedRepository 创建带缓存的仓储
func NewCachedRepository(next Repository, m *cache.Manager, ttl time.Duration, logger *zap.Logger) *CachedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRepository{
		next:   next,
		cache:  m,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "user_cache")),
	}
}

func (r *CachedRepository) key(id string) string {
	return "user:" + id
}

func (r *CachedRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, r.key(id)); err != nil {
		r.logger.Warn("failed to invalidate user cache", zap.String("user_id", id), zap.Error(err))
	}
}

func (r *CachedRepository) fill(ctx context.Context, u *User) {
	if err := r.cache.SetJSON(ctx, r.key(u.ID), u, r.ttl); err != nil {
		r.logger.Warn("failed to cache user", zap.String("user_id", u.ID), zap.Error(err))
	}
}

func (r *CachedRepository) record(hit bool) {
	switch {
	case r.Recorder == nil:
	case hit:
		r.Recorder.RecordCacheHit("user")
	default:
		r.Recorder.RecordCacheMiss("user")
	}
}

// Get 读取用户
func (r *CachedRepository) Get(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.cache.GetJSON(ctx, r.key(id), &u)
	if err == nil {
		r.record(true)
		return &u, nil
	}
	r.record(false)
	if !cache.IsCacheMiss(err) {
		r.logger.Debug("user cache read failed", zap.String("user_id", id), zap.Error(err))
	}

	fresh, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, fresh)
	return fresh, nil
}

// GetOrCreate 读取或创建用户
func (r *CachedRepository) GetOrCreate(ctx context.Context, id string, profile types.Profile) (*User, bool, error) {
	if u, err := r.Get(ctx, id); err == nil {
		return u, false, nil
	}
	u, created, err := r.next.GetOrCreate(ctx, id, profile)
	if err != nil {
		return nil, false, err
	}
	r.fill(ctx, u)
	return u, created, nil
}

// Save 保存用户并使缓存失效
func (r *CachedRepository) Save(ctx context.Context, u *User) error {
	if err := r.next.Save(ctx, u); err != nil {
		return err
	}
	r.invalidate(ctx, u.ID)
	return nil
}

// SaveState 写回状态列并使缓存失效
func (r *CachedRepository) SaveState(ctx context.Context, u *User) error {
	if err := r.next.SaveState(ctx, u); err != nil {
		return err
	}
	r.invalidate(ctx, u.ID)
	return nil
}

// MergePreferences 合并偏好并使缓存失效
func (r *CachedRepository) MergePreferences(ctx context.Context, id string, prefs map[string]any) (*User, error) {
	u, err := r.next.MergePreferences(ctx, id, prefs)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return u, nil
}

// List 直接读底层仓储
func (r *CachedRepository) List(ctx context.Context, opts ListOptions) ([]*User, error) {
	return r.next.List(ctx, opts)
}

// Touch 记录活跃时间并使缓存失效
func (r *CachedRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if err := r.next.Touch(ctx, id, at); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/internal/database"
	"github.com/BaSui01/dailycrew/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound 用户不存在
	ErrNotFound = errors.New("user not found")
	// ErrInvalidUser 用户记录缺少 ID
	ErrInvalidUser = errors.New("invalid user")
)

// ListOptions 分页参数
type ListOptions struct {
	Offset int
	Limit  int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 1000 {
		return 100
	}
	return o.Limit
}

// Repository 用户仓储
type Repository interface {
	Get(ctx context.Context, id string) (*User, error)
	// GetOrCreate 返回用户，若不存在则按 profile 创建；created 表示本次是否新建
	GetOrCreate(ctx context.Context, id string, profile types.Profile) (u *User, created bool, err error)
	Save(ctx context.Context, u *User) error
	// SaveState 只写回引导进度、集成状态与活跃时间，不触碰资料与偏好
	SaveState(ctx context.Context, u *User) error
	MergePreferences(ctx context.Context, id string, prefs map[string]any) (*User, error)
	// List 按 ID 排序分页返回用户
	List(ctx context.Context, opts ListOptions) ([]*User, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

// =============================================================================
// 🗄️ GormRepository
// =============================================================================

// GormRepository 基于 gorm 的用户仓储
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository 创建 gorm 用户仓储
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Get 读取用户
func (r *GormRepository) Get(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetOrCreate 读取或创建用户，并发创建时以先写入者为准
func (r *GormRepository) GetOrCreate(ctx context.Context, id string, profile types.Profile) (*User, bool, error) {
	if id == "" {
		return nil, false, ErrInvalidUser
	}
	u, err := r.Get(ctx, id)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	fresh := NewUser(id, profile)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		u, err := r.Get(ctx, id)
		return u, false, err
	}
	return fresh, true, nil
}

// Save 保存整条用户记录
func (r *GormRepository) Save(ctx context.Context, u *User) error {
	if u == nil || u.ID == "" {
		return ErrInvalidUser
	}
	if err := r.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// stateColumns 协调器一轮处理中会修改的列
var stateColumns = []string{
	"onboarding_status", "onboarding_step", "reprompt_count", "integrations", "last_active_at", "updated_at",
}

// SaveState 按列更新，不覆盖同一时刻写入的偏好
func (r *GormRepository) SaveState(ctx context.Context, u *User) error {
	if u == nil || u.ID == "" {
		return ErrInvalidUser
	}
	res := r.db.WithContext(ctx).Model(u).Select(stateColumns).Updates(u)
	if res.Error != nil {
		return fmt.Errorf("save user state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// mergeAttempts 偏好合并事务遇到死锁或序列化冲突时的最大执行次数
const mergeAttempts = 3

// MergePreferences 在事务内读改写偏好，并发冲突时重试
func (r *GormRepository) MergePreferences(ctx context.Context, id string, prefs map[string]any) (*User, error) {
	var out *User
	err := database.Transact(ctx, r.db, mergeAttempts, nil, func(tx *gorm.DB) error {
		var u User
		err := tx.Where("id = ?", id).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		u.MergePreferences(prefs)
		if err := tx.Model(&u).Select("preferences", "updated_at").Updates(&u).Error; err != nil {
			return err
		}
		out = &u
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("merge preferences: %w", err)
	}
	return out, nil
}

// List 分页列出用户
func (r *GormRepository) List(ctx context.Context, opts ListOptions) ([]*User, error) {
	var list []*User
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset(opts.Offset).
		Limit(opts.limit()).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

// Touch 记录最近活跃时间
func (r *GormRepository) Touch(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).UpdateColumn("last_active_at", at)
	if res.Error != nil {
		return fmt.Errorf("touch user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// 🧠 MemoryRepository
// =============================================================================

// MemoryRepository 内存用户仓储，适合开发与测试
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryRepository 创建内存用户仓储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*User)}
}

// Get 读取用户
func (r *MemoryRepository) Get(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// GetOrCreate 读取或创建用户
func (r *MemoryRepository) GetOrCreate(ctx context.Context, id string, profile types.Profile) (*User, bool, error) {
	if id == "" {
		return nil, false, ErrInvalidUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u.Clone(), false, nil
	}
	u := NewUser(id, profile)
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.users[id] = u
	return u.Clone(), true, nil
}

// Save 保存用户
func (r *MemoryRepository) Save(ctx context.Context, u *User) error {
	if u == nil || u.ID == "" {
		return ErrInvalidUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := u.Clone()
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	r.users[u.ID] = cp
	return nil
}

// SaveState 只写回状态列
func (r *MemoryRepository) SaveState(ctx context.Context, u *User) error {
	if u == nil || u.ID == "" {
		return ErrInvalidUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	src := u.Clone()
	cur.OnboardingStatus = src.OnboardingStatus
	cur.OnboardingStep = src.OnboardingStep
	cur.RepromptCount = src.RepromptCount
	cur.Integrations = src.Integrations
	cur.LastActiveAt = src.LastActiveAt
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

// MergePreferences 合并偏好
func (r *MemoryRepository) MergePreferences(ctx context.Context, id string, prefs map[string]any) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.MergePreferences(prefs)
	u.UpdatedAt = time.Now().UTC()
	return u.Clone(), nil
}

// List 分页列出用户
func (r *MemoryRepository) List(ctx context.Context, opts ListOptions) ([]*User, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	if opts.Offset >= len(ids) {
		return []*User{}, nil
	}
	end := min(opts.Offset+opts.limit(), len(ids))

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, end-opts.Offset)
	for _, id := range ids[opts.Offset:end] {
		if u, ok := r.users[id]; ok {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}

// Touch 记录最近活跃时间
func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastActiveAt = &at
	return nil
}

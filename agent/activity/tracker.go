package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/internal/cache"
)

const (
	// DeclineThreshold 视为下降的最小降幅
	DeclineThreshold = 0.30
	// MinPreviousEvents 之前窗口的最少事件数，低于此值不判断
	MinPreviousEvents = 3

	bucketTTL = 48 * time.Hour
)

// SourceMessages 入站消息计数的来源名
const SourceMessages = "messages"

// Tracker 按小时记录用户活跃度
type Tracker interface {
	Record(ctx context.Context, userID string, at time.Time) error
	// Count 返回 [from, to) 内各小时桶的总数，from/to 按小时对齐
	Count(ctx context.Context, userID string, from, to time.Time) (int64, error)
}

// Decline 一次活跃度比较的结果
type Decline struct {
	Previous int64   `json:"previous"`
	Current  int64   `json:"current"`
	Drop     float64 `json:"drop"`
	Declined bool    `json:"declined"`
	// Source 计数来源，如 SourceMessages 或 SourceGitHub
	Source string `json:"source,omitempty"`
}

// Check 比较截至 now 所在小时的最近 window 与之前 window
func Check(ctx context.Context, t Tracker, userID string, now time.Time, window time.Duration) (Decline, error) {
	start, mid, end := Windows(now, window)
	prev, err := t.Count(ctx, userID, start, mid)
	if err != nil {
		return Decline{}, err
	}
	cur, err := t.Count(ctx, userID, mid, end)
	if err != nil {
		return Decline{}, err
	}
	d := Evaluate(prev, cur)
	d.Source = SourceMessages
	return d, nil
}

// Windows 返回之前窗口 [start, mid) 与当前窗口 [mid, end)，end 为 now 所在小时的结束，
// window 向下取整到小时且至少一小时
func Windows(now time.Time, window time.Duration) (start, mid, end time.Time) {
	if window < time.Hour {
		window = time.Hour
	}
	window = window.Truncate(time.Hour)
	end = now.UTC().Truncate(time.Hour).Add(time.Hour)
	mid = end.Add(-window)
	start = mid.Add(-window)
	return start, mid, end
}

// Evaluate 纯函数判断
func Evaluate(previous, current int64) Decline {
	d := Decline{Previous: previous, Current: current}
	if previous <= 0 {
		return d
	}
	d.Drop = float64(previous-current) / float64(previous)
	d.Declined = previous >= MinPreviousEvents && d.Drop >= DeclineThreshold
	return d
}

func hours(from, to time.Time) []time.Time {
	from = from.UTC().Truncate(time.Hour)
	to = to.UTC().Truncate(time.Hour)
	var out []time.Time
	for h := from; h.Before(to); h = h.Add(time.Hour) {
		out = append(out, h)
	}
	return out
}

// =============================================================================
// 🗄️ RedisTracker
// =============================================================================

// RedisTracker 使用 INCR + EXPIRE 的小时桶
type RedisTracker struct {
	cache *cache.Manager
}

// NewRedisTracker 创建 Redis 活跃度统计
func NewRedisTracker(m *cache.Manager) *RedisTracker {
	return &RedisTracker{cache: m}
}

func bucketKey(userID string, hour time.Time) string {
	return fmt.Sprintf("activity:%s:%s", userID, hour.UTC().Format("2006010215"))
}

// Record 实现 Tracker
func (r *RedisTracker) Record(ctx context.Context, userID string, at time.Time) error {
	_, err := r.cache.IncrWithExpire(ctx, bucketKey(userID, at.UTC().Truncate(time.Hour)), bucketTTL)
	return err
}

// Count 实现 Tracker
func (r *RedisTracker) Count(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	hs := hours(from, to)
	if len(hs) == 0 {
		return 0, nil
	}
	keys := make([]string, len(hs))
	for i, h := range hs {
		keys[i] = bucketKey(userID, h)
	}
	vals, err := r.cache.GetInts(ctx, keys...)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, v := range vals {
		total += v
	}
	return total, nil
}

// =============================================================================
// 🧠 MemoryTracker
// =============================================================================

// MemoryTracker 内存实现，桶不过期
type MemoryTracker struct {
	mu      sync.Mutex
	buckets map[string]map[int64]int64
}

// NewMemoryTracker 创建内存活跃度统计
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{buckets: make(map[string]map[int64]int64)}
}

// Record 实现 Tracker
func (m *MemoryTracker) Record(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[userID] == nil {
		m.buckets[userID] = make(map[int64]int64)
	}
	m.buckets[userID][at.UTC().Truncate(time.Hour).Unix()]++
	return nil
}

// Count 实现 Tracker
func (m *MemoryTracker) Count(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, h := range hours(from, to) {
		total += m.buckets[userID][h.Unix()]
	}
	return total, nil
}

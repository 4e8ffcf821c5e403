package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/dailycrew/internal/broker"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ GormSink
// =============================================================================

// GormSink 写入 interactions 表
type GormSink struct {
	db *gorm.DB
}

// NewGormSink 创建 gorm sink
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

// Append 实现 Sink
func (s *GormSink) Append(ctx context.Context, e Entry) error {
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

// =============================================================================
// 📣 PublisherSink
// =============================================================================

// EnvelopePublisher 发布信封的消息代理
type EnvelopePublisher interface {
	Publish(ctx context.Context, key string, env broker.Envelope) error
}

// PublisherSink 以 interaction.logged 路由键发布每条记录
type PublisherSink struct {
	pub EnvelopePublisher
}

// NewPublisherSink 创建发布 sink
func NewPublisherSink(pub EnvelopePublisher) *PublisherSink {
	return &PublisherSink{pub: pub}
}

// Append 实现 Sink
func (s *PublisherSink) Append(ctx context.Context, e Entry) error {
	env := broker.NewEnvelope(broker.TypeInteraction, e, e.ID)
	return s.pub.Publish(ctx, broker.RoutingInteraction, env)
}

// =============================================================================
// 🧠 MemorySink
// =============================================================================

// MemorySink 内存 sink，适合开发与测试
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemorySink 创建内存 sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append 实现 Sink
func (s *MemorySink) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries 返回副本
func (s *MemorySink) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// ForUser 返回某用户的记录
func (s *MemorySink) ForUser(userID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// 🔀 Fanout
// =============================================================================

// Fanout 依次写入所有 sink；单个 sink 失败不影响其余 sink
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewFanout 创建扇出 sink
func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger.With(zap.String("component", "interaction_log"))}
}

// Append 实现 Sink，返回所有失败的合并错误
func (f *Fanout) Append(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Append(ctx, e); err != nil {
			f.logger.Warn("interaction sink failed",
				zap.String("entry_id", e.ID),
				zap.String("type", string(e.Type)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/agent/users"
	"github.com/BaSui01/dailycrew/config"
	"github.com/BaSui01/dailycrew/internal/pool"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

const (
	listPageSize = 200
	fireTimeout  = time.Minute
	dedupeTTL    = 2 * time.Hour
)

// Dispatcher 处理定时事件，*coordinator.Coordinator 实现了它
type Dispatcher interface {
	Handle(ctx context.Context, ev types.Event) (*types.Reply, error)
}

// Outbound 投递非静默回复
type Outbound interface {
	Deliver(ctx context.Context, ev types.Event, reply *types.Reply) error
}

// OutboundFunc 函数适配器
type OutboundFunc func(ctx context.Context, ev types.Event, reply *types.Reply) error

// Deliver implements Outbound.
func (f OutboundFunc) Deliver(ctx context.Context, ev types.Event, reply *types.Reply) error {
	return f(ctx, ev, reply)
}

// MultiOutbound 依次投递到多个出口，返回合并后的错误
type MultiOutbound []Outbound

// Deliver implements Outbound.
func (m MultiOutbound) Deliver(ctx context.Context, ev types.Event, reply *types.Reply) error {
	var errs []error
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.Deliver(ctx, ev, reply); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UserLister 分页列出用户
type UserLister interface {
	List(ctx context.Context, opts users.ListOptions) ([]*users.User, error)
}

// Recorder 调度指标
type Recorder interface {
	RecordSchedulerFire(kind, result string)
}

// Deps 调度器依赖
type Deps struct {
	Users      UserLister
	Dispatcher Dispatcher
	Outbound   Outbound
	Deduper    Deduper
	Metrics    Recorder
	Clock      func() time.Time
}

// Scheduler 定时事件源
type Scheduler struct {
	cfg        config.SchedulerConfig
	rules      []Rule
	fallback   *time.Location
	users      UserLister
	dispatcher Dispatcher
	outbound   Outbound
	deduper    Deduper
	metrics    Recorder
	now        func() time.Time
	workers    *pool.GoroutinePool
	logger     *zap.Logger

	mu      sync.Mutex
	last    time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New 创建调度器
func New(cfg config.SchedulerConfig, deps Deps, logger *zap.Logger) (*Scheduler, error) {
	if deps.Users == nil || deps.Dispatcher == nil {
		return nil, errors.New("scheduler: users and dispatcher are required")
	}
	if cfg.Tick <= 0 {
		return nil, fmt.Errorf("scheduler: tick must be positive, got %s", cfg.Tick)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := time.UTC
	if cfg.DefaultTimezone != "" {
		l, err := time.LoadLocation(cfg.DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler: default timezone: %w", err)
		}
		loc = l
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	logger = logger.With(zap.String("component", "scheduler"))
	return &Scheduler{
		cfg:        cfg,
		rules:      RulesFromConfig(cfg),
		fallback:   loc,
		users:      deps.Users,
		dispatcher: deps.Dispatcher,
		outbound:   deps.Outbound,
		deduper:    deps.Deduper,
		metrics:    deps.Metrics,
		now:        deps.Clock,
		workers: pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			Name:       "scheduler",
			MaxWorkers: cfg.Workers,
			QueueSize:  1024,
		}, logger),
		logger: logger,
	}, nil
}

// Start 启动 tick 循环
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler already started")
	}
	if s.stopped {
		return errors.New("scheduler stopped")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	if s.last.IsZero() {
		s.last = s.now()
	}

	s.wg.Add(1)
	go s.run(runCtx, s.done)
	s.logger.Info("scheduler started",
		zap.Duration("tick", s.cfg.Tick),
		zap.Int("rules", len(s.rules)),
		zap.Bool("weekdays_only", s.cfg.WeekdaysOnly),
	)
	return nil
}

// Stop 停止 tick 循环并等待在途事件完成，ctx 结束时取消在途事件
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	done, cancel := s.done, s.cancel
	s.done = nil
	if done != nil {
		s.stopped = true
	}
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	close(done)
	s.wg.Wait()

	drained := make(chan struct{})
	go func() {
		s.workers.Close()
		close(drained)
	}()
	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		cancel()
		<-drained
	}
	cancel()
	st := s.workers.Stats()
	s.logger.Info("scheduler stopped",
		zap.Int64("fired", st.Completed),
		zap.Int64("failed", st.Failed),
		zap.Int64("rejected", st.Rejected))
	return err
}

func (s *Scheduler) run(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx, s.now())
		case <-done:
			return
		}
	}
}

// Tick 处理 (last, now] 窗口内到期的触发并返回提交的事件数
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	from := s.last
	if from.IsZero() {
		from = now.Add(-s.cfg.Tick)
	}
	if gap := now.Sub(from); gap > 2*s.cfg.Tick {
		s.logger.Warn("scheduler window too large, missed slots are not backfilled",
			zap.Duration("gap", gap),
			zap.Time("last", from),
		)
		from = now.Add(-s.cfg.Tick)
	}
	if !now.After(from) {
		s.mu.Unlock()
		return 0
	}
	s.last = now
	s.mu.Unlock()

	fired := 0
	for offset := 0; ; offset += listPageSize {
		page, err := s.users.List(ctx, users.ListOptions{Offset: offset, Limit: listPageSize})
		if err != nil {
			s.logger.Error("failed to list users", zap.Int("offset", offset), zap.Error(err))
			return fired
		}
		for _, u := range page {
			for _, occ := range Due(s.rules, from, now, u.Location(s.fallback), s.cfg.WeekdaysOnly) {
				if !eligible(occ.Rule.Kind, u.OnboardingStatus) {
					continue
				}
				if s.fire(ctx, u.ID, occ) {
					fired++
				}
			}
		}
		if len(page) < listPageSize {
			return fired
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, userID string, occ Occurrence) bool {
	kind := occ.Rule.Kind
	ev := types.Event{
		ID:        EventID(kind, userID, occ.At),
		UserID:    userID,
		Kind:      kind,
		Timestamp: occ.At,
	}

	if s.deduper != nil {
		ok, err := s.deduper.Claim(ctx, ev.ID, dedupeTTL)
		if err != nil {
			s.logger.Warn("dedupe claim failed, firing anyway", zap.String("event_id", ev.ID), zap.Error(err))
		} else if !ok {
			s.record(kind, "duplicate")
			return false
		}
	}

	err := s.workers.Submit(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, fireTimeout)
		defer cancel()
		return s.deliver(ctx, ev)
	})
	if err != nil {
		s.logger.Warn("scheduler pool rejected event", zap.String("event_id", ev.ID), zap.Error(err))
		s.record(kind, "rejected")
		return false
	}
	return true
}

func (s *Scheduler) deliver(ctx context.Context, ev types.Event) error {
	reply, err := s.dispatcher.Handle(ctx, ev)
	if err != nil {
		s.logger.Error("scheduled event failed",
			zap.String("user_id", ev.UserID),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		s.record(ev.Kind, "error")
		return err
	}
	if reply == nil || reply.Silent {
		s.record(ev.Kind, "silent")
		return nil
	}
	if s.outbound != nil {
		if err := s.outbound.Deliver(ctx, ev, reply); err != nil {
			s.logger.Warn("failed to deliver scheduled reply",
				zap.String("user_id", ev.UserID),
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
			s.record(ev.Kind, "undelivered")
			return err
		}
	}
	s.record(ev.Kind, "fired")
	return nil
}

func (s *Scheduler) record(kind types.EventKind, result string) {
	if s.metrics != nil {
		s.metrics.RecordSchedulerFire(string(kind), result)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/agent/activity"
	"github.com/BaSui01/dailycrew/agent/coordinator"
	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/agent/interaction"
	"github.com/BaSui01/dailycrew/agent/onboarding"
	"github.com/BaSui01/dailycrew/agent/persistence"
	"github.com/BaSui01/dailycrew/agent/scheduler"
	"github.com/BaSui01/dailycrew/agent/session"
	"github.com/BaSui01/dailycrew/agent/specialist"
	"github.com/BaSui01/dailycrew/agent/users"
	"github.com/BaSui01/dailycrew/api/handlers"
	"github.com/BaSui01/dailycrew/config"
	"github.com/BaSui01/dailycrew/integrations"
	"github.com/BaSui01/dailycrew/integrations/github"
	"github.com/BaSui01/dailycrew/integrations/google"
	"github.com/BaSui01/dailycrew/integrations/youtrack"
	"github.com/BaSui01/dailycrew/internal/broker"
	"github.com/BaSui01/dailycrew/internal/cache"
	"github.com/BaSui01/dailycrew/internal/database"
	"github.com/BaSui01/dailycrew/internal/metrics"
	"github.com/BaSui01/dailycrew/internal/migration"
	"github.com/BaSui01/dailycrew/internal/pool"
	"github.com/BaSui01/dailycrew/internal/server"
	"github.com/BaSui01/dailycrew/internal/telemetry"
	"github.com/BaSui01/dailycrew/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有 serve 命令的全部组件及其生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry   *telemetry.Providers
	collector   *metrics.Collector
	db          *gorm.DB
	dbPool      *database.PoolManager
	cache       *cache.Manager
	sessions    persistence.ContextStore
	closeLog    func(context.Context) error
	publisher   *broker.Publisher
	consumer    *broker.Consumer
	workers     *pool.GoroutinePool
	scheduler   *scheduler.Scheduler
	coordinator *coordinator.Coordinator
	hub         *handlers.Hub
	servers     *server.Group

	// runCtx 覆盖后台协程（消费者、限流清理、连接池指标），Shutdown 时取消
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	once      sync.Once
}

// NewServer 按配置组装所有组件。任何必需依赖不可用时返回错误并释放已创建的资源。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	if err := s.init(ctx); err != nil {
		s.Shutdown(context.Background())
		return nil, err
	}
	return s, nil
}

// =============================================================================
// 🔧 初始化
// =============================================================================

func (s *Server) init(ctx context.Context) error {
	cfg := s.cfg

	// 1. 遥测与指标
	providers, err := telemetry.Init(ctx, cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("telemetry disabled", zap.Error(err))
	}
	s.telemetry = providers
	s.collector = metrics.NewCollector("dailycrew", s.logger)
	instruments, err := telemetry.NewInstruments(nil)
	if err != nil {
		return fmt.Errorf("otel instruments: %w", err)
	}
	recorder := teeRecorder{s.collector, instruments}

	// 2. 存储
	if err := s.initStorage(ctx); err != nil {
		return err
	}
	userRepo, creds := s.repositories()

	// 3. 消息代理与交互日志
	brokerOpts := broker.ConnectionOptions{
		URL:           cfg.Broker.URL,
		RetryAttempts: cfg.Broker.RetryAttempts,
		Delay:         cfg.Broker.RetryDelay,
	}
	var envelopes interaction.EnvelopePublisher
	if cfg.Broker.Enabled {
		pub, err := broker.NewPublisher(ctx, brokerOpts, cfg.Broker.Exchange, s.logger)
		if err != nil {
			return fmt.Errorf("broker publisher: %w", err)
		}
		s.publisher = pub
		envelopes = pub
	}
	interactionLog, closeLog, err := interaction.NewFromConfig(ctx, cfg.Interaction, interaction.Backends{DB: s.db, Publisher: envelopes}, s.logger)
	if err != nil {
		return fmt.Errorf("interaction log: %w", err)
	}
	s.closeLog = closeLog

	var tracker activity.Tracker = activity.NewMemoryTracker()
	if s.cache != nil {
		tracker = activity.NewRedisTracker(s.cache)
	}

	// 4. 集成客户端、专家与引导
	opts := integrations.Options{Timeout: cfg.Integrations.Timeout, MaxRetries: cfg.Integrations.MaxRetries}
	ghOpts := opts
	ghOpts.BaseURL = cfg.Integrations.GitHubBaseURL
	gh := github.New(ghOpts, s.logger)
	gc := google.New(googleEndpoints(cfg.Integrations), opts, s.logger)
	yt := youtrack.New(opts, s.logger)

	registry, err := specialist.NewDefaultRegistry(specialist.Sources{
		Calendar: gc,
		Mail:     gc,
		Code:     gh,
		Issues:   yt,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("specialist registry: %w", err)
	}

	validators := onboarding.IntegrationValidators(gh, gc, yt)
	obCfg := onboarding.Config{
		RepromptThreshold:   cfg.Onboarding.RepromptThreshold,
		ValidateCredentials: cfg.Onboarding.ValidateCredentials,
	}

	// 5. 协调器
	s.coordinator, err = coordinator.New(coordinator.Deps{
		Users:       userRepo,
		Sessions:    s.sessions,
		Credentials: creds,
		Specialists: registry,
		Onboarding:  onboarding.NewMachine(creds, validators, obCfg, s.logger),
		Updater:     onboarding.NewUpdater(creds, validators, obCfg, s.logger),
		Log:         interactionLog,
		Activity:    tracker,
		Metrics:     recorder,
		Counter:     session.NewCounter(cfg.Session.BudgetUnit, cfg.Session.TokenEncoding, s.logger),

		ActivitySources: []activity.Source{activity.NewGitHubSource(gh)},
	}, coordinator.OptionsFromConfig(cfg.Dispatch, cfg.Session), s.logger)
	if err != nil {
		return err
	}

	// 6. 出站：websocket 推送 + broker 发布
	s.hub = handlers.NewHub(s.logger)
	outbound := scheduler.MultiOutbound{s.hub}
	if s.publisher != nil {
		outbound = append(outbound, scheduler.OutboundFunc(s.publisher.PublishReply))
	}

	if cfg.Scheduler.Enabled {
		var deduper scheduler.Deduper
		if cfg.Scheduler.Dedupe && s.cache != nil {
			deduper = scheduler.NewRedisDeduper(s.cache)
		}
		s.scheduler, err = scheduler.New(cfg.Scheduler, scheduler.Deps{
			Users:      userRepo,
			Dispatcher: s.coordinator,
			Outbound:   outbound,
			Deduper:    deduper,
			Metrics:    recorder,
		}, s.logger)
		if err != nil {
			return err
		}
	}

	if cfg.Broker.Enabled {
		workers := cfg.Broker.Workers
		if workers <= 0 {
			workers = 4
		}
		s.workers = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			Name:        "broker",
			MaxWorkers:  workers,
			QueueSize:   workers * 2,
			IdleTimeout: time.Minute,
		}, s.logger)
		s.consumer = broker.NewConsumer(brokerOpts, broker.ConsumerConfig{
			Exchange:       cfg.Broker.Exchange,
			Queue:          cfg.Broker.Queue,
			Prefetch:       cfg.Broker.Prefetch,
			HandlerTimeout: 2 * cfg.Dispatch.SpecialistTimeout,
		}, s.coordinator, outboundReplies{outbound}, s.workers, s.logger)
		s.consumer.OnOutcome = s.collector.RecordBrokerMessage
	}

	// 7. HTTP
	return s.initHTTP(userRepo)
}

// initStorage 打开数据库、可选的 redis 与会话存储
func (s *Server) initStorage(ctx context.Context) error {
	cfg := s.cfg

	db, err := database.Open(cfg.Database, s.logger)
	if err != nil {
		return err
	}
	s.db = db
	if err := database.Instrument(db, cfg.Database.Driver, s.collector); err != nil {
		return fmt.Errorf("instrument database: %w", err)
	}
	s.dbPool, err = database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), s.logger)
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	s.dbPool.Observe(cfg.Database.Driver, s.collector)
	if err := s.dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := s.migrate(ctx); err != nil {
			return err
		}
	}

	if cfg.Redis.Enabled {
		s.cache, err = cache.NewManager(cache.ConfigFromRedis(cfg.Redis), s.logger)
		if err != nil {
			return err
		}
	}

	s.sessions, err = persistence.NewContextStore(persistence.StoreConfig{
		Type: persistence.StoreType(cfg.Session.Store),
		TTL:  cfg.Session.TTL,
	}, persistence.Backends{Cache: s.cache, DB: s.db})
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// migrate 纯 Go 的 sqlite 驱动走 gorm AutoMigrate，其余方言执行内嵌 SQL 迁移
func (s *Server) migrate(ctx context.Context) error {
	if s.cfg.Database.Driver == "sqlite" {
		if err := s.db.WithContext(ctx).AutoMigrate(
			&users.User{},
			&credential.Record{},
			&persistence.SessionContextRecord{},
			&interaction.Entry{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database, s.logger)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// repositories 构建用户仓库与凭据存储，redis 可用时加一层缓存
func (s *Server) repositories() (users.Repository, credential.Store) {
	var (
		userRepo users.Repository = users.NewGormRepository(s.db)
		creds    credential.Store = credential.NewGormStore(s.db)
	)
	if s.cache != nil {
		ttl := s.cfg.Redis.DefaultTTL
		cachedUsers := users.NewCachedRepository(userRepo, s.cache, ttl, s.logger)
		cachedUsers.Recorder = s.collector
		cachedCreds := credential.NewCapabilityCache(creds, s.cache, ttl, s.logger)
		cachedCreds.Recorder = s.collector
		userRepo, creds = cachedUsers, cachedCreds
	}
	return userRepo, creds
}

func (s *Server) initHTTP(userRepo users.Repository) error {
	cfg := s.cfg

	health := handlers.NewHealthHandler(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	health.RegisterCheck(handlers.CheckFunc{CheckName: "database", Fn: s.dbPool.Ping})
	health.RegisterCheck(handlers.CheckFunc{CheckName: "session_store", Fn: s.sessions.Ping})
	if s.cache != nil {
		health.RegisterCheck(handlers.CheckFunc{CheckName: "redis", Fn: s.cache.Ping})
	}

	router := newRouter(s.runCtx, cfg.Server, routes{
		health:    health,
		events:    handlers.NewEventHandler(s.coordinator, s.logger),
		users:     handlers.NewUserHandler(userRepo, s.coordinator, s.logger),
		websocket: handlers.NewWebSocketHandler(s.hub, s.coordinator, s.collector, cfg.Server.CORSAllowedOrigins, s.logger),
		metrics:   s.collector,
	}, s.logger)

	managers := []*server.Manager{
		server.NewManager("api", router, server.APIConfig(cfg.Server), s.logger),
	}
	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		managers = append(managers, server.NewManager("metrics", mux, server.MetricsConfig(cfg.Server), s.logger))
	}
	s.servers = server.NewGroup(s.logger, managers...)
	return nil
}

func googleEndpoints(ic config.IntegrationsConfig) google.Endpoints {
	ep := google.DefaultEndpoints()
	if ic.GoogleTokenURL != "" {
		ep.TokenURL = ic.GoogleTokenURL
	}
	if ic.GoogleCalendarURL != "" {
		ep.CalendarURL = ic.GoogleCalendarURL
	}
	if ic.GoogleGmailURL != "" {
		ep.GmailURL = ic.GoogleGmailURL
	}
	return ep
}

// outboundReplies 让 broker 消费者的回复也走 websocket 推送与 broker 发布
type outboundReplies struct {
	out scheduler.Outbound
}

func (o outboundReplies) PublishReply(ctx context.Context, ev types.Event, reply *types.Reply) error {
	return o.out.Deliver(ctx, ev, reply)
}

// =============================================================================
// 🚀 启动与等待
// =============================================================================

// Start 启动 HTTP 服务器、定时器与消费者
func (s *Server) Start(ctx context.Context) error {
	if err := s.servers.Start(ctx); err != nil {
		return err
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(s.runCtx); err != nil {
			return err
		}
	}
	if s.consumer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Run(s.runCtx); err != nil {
				s.logger.Error("broker consumer stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("All components started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("scheduler", s.scheduler != nil),
		zap.Bool("broker", s.consumer != nil),
		zap.Bool("redis", s.cache != nil),
	)
	return nil
}

// Wait 阻塞到 ctx 结束（正常关闭，返回 nil）或某个 HTTP 服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	return s.servers.Wait(ctx)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 优雅关闭：先停入口（定时器、HTTP），再停消费者，最后释放存储与遥测。
// 可重复调用。
func (s *Server) Shutdown(ctx context.Context) {
	s.once.Do(func() { s.shutdown(ctx) })
}

func (s *Server) shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	var errs []error
	record := func(name string, err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("shutdown error", zap.String("component", name), zap.Error(err))
			errs = append(errs, err)
		}
	}

	if s.scheduler != nil {
		record("scheduler", s.scheduler.Stop(ctx))
	}
	if s.servers != nil {
		record("http", s.servers.Shutdown(ctx))
	}

	s.runCancel()
	s.wg.Wait()

	if s.workers != nil {
		s.workers.Close()
	}
	if s.publisher != nil {
		record("broker_publisher", s.publisher.Close())
	}
	if s.closeLog != nil {
		record("interaction_log", s.closeLog(ctx))
	}
	if s.sessions != nil {
		record("session_store", s.sessions.Close())
	}
	if s.cache != nil {
		record("cache", s.cache.Close())
	}
	if s.dbPool != nil {
		record("database", s.dbPool.Close())
	}
	record("telemetry", s.telemetry.Shutdown(ctx))

	if len(errs) > 0 {
		s.logger.Warn("Graceful shutdown completed with errors", zap.Int("errors", len(errs)))
		return
	}
	s.logger.Info("Graceful shutdown completed")
}

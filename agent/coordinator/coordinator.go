package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/dailycrew/agent/activity"
	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/agent/interaction"
	"github.com/BaSui01/dailycrew/agent/onboarding"
	"github.com/BaSui01/dailycrew/agent/persistence"
	"github.com/BaSui01/dailycrew/agent/session"
	"github.com/BaSui01/dailycrew/agent/specialist"
	"github.com/BaSui01/dailycrew/agent/users"
	"github.com/BaSui01/dailycrew/config"
	"github.com/BaSui01/dailycrew/internal/ctxkeys"
	"github.com/BaSui01/dailycrew/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/dailycrew/agent/coordinator"

const (
	degradedReply    = "Sorry, something went wrong on my side. Please try again in a moment."
	redactedTurnText = "[credential redacted]"
)

// Recorder 协调器使用的指标接口，*metrics.Collector 实现了它
type Recorder interface {
	RecordTurn(kind, strategy, outcome string, duration time.Duration)
	RecordSpecialist(name, status, code string, duration time.Duration)
	RecordOnboarding(from, to, input string)
	RecordCredentialCheck(integration, result string)
}

// Options 调度参数
type Options struct {
	// FanOutLimit 同一阶段并发执行的专家上限
	FanOutLimit int
	// SpecialistTimeout 单个专家调用超时
	SpecialistTimeout time.Duration
	// CredentialTimeout 单次凭证能力检查超时
	CredentialTimeout time.Duration
	// ContextBudget 传给下游专家的上游上下文预算
	ContextBudget int
	MaxTurns      int
	MaxSubTasks   int
	// ActivityWindow 活跃度检查比较的窗口长度
	ActivityWindow time.Duration
}

// DefaultOptions 返回默认调度参数
func DefaultOptions() Options {
	return Options{
		FanOutLimit:       3,
		SpecialistTimeout: 20 * time.Second,
		CredentialTimeout: 3 * time.Second,
		ContextBudget:     2000,
		MaxTurns:          40,
		MaxSubTasks:       20,
		ActivityWindow:    2 * time.Hour,
	}
}

// OptionsFromConfig 从配置构造调度参数，零值字段保留默认值
func OptionsFromConfig(d config.DispatchConfig, s config.SessionConfig) Options {
	o := DefaultOptions()
	if d.FanOutLimit > 0 {
		o.FanOutLimit = d.FanOutLimit
	}
	if d.SpecialistTimeout > 0 {
		o.SpecialistTimeout = d.SpecialistTimeout
	}
	if d.CredentialTimeout > 0 {
		o.CredentialTimeout = d.CredentialTimeout
	}
	if d.ContextBudget > 0 {
		o.ContextBudget = d.ContextBudget
	}
	if s.MaxTurns > 0 {
		o.MaxTurns = s.MaxTurns
	}
	if s.MaxSubTasks > 0 {
		o.MaxSubTasks = s.MaxSubTasks
	}
	return o
}

// Deps 协调器依赖。Users、Sessions、Credentials、Specialists 必填，其余可选。
type Deps struct {
	Users       users.Repository
	Sessions    persistence.ContextStore
	Credentials credential.Store
	Specialists *specialist.Registry
	Onboarding  *onboarding.Machine
	Updater     *onboarding.Updater
	Log         interaction.Sink
	Activity    activity.Tracker
	Metrics     Recorder
	Counter     session.Counter
	Tracer      trace.Tracer
	Clock       func() time.Time

	// ActivitySources 额外的外部平台活跃度，仅对已配置对应集成的用户查询
	ActivitySources []activity.Source
}

// Coordinator 每个回合的调度器
type Coordinator struct {
	users       users.Repository
	sessions    persistence.ContextStore
	creds       credential.Store
	specialists *specialist.Registry
	onboarding  *onboarding.Machine
	updater     *onboarding.Updater
	log         interaction.Sink
	activity    activity.Tracker
	sources     []activity.Source
	metrics     Recorder
	counter     session.Counter
	tracer      trace.Tracer
	now         func() time.Time

	opts   Options
	locks  *keyedMutex
	logger *zap.Logger
}

// New 创建协调器
func New(deps Deps, opts Options, logger *zap.Logger) (*Coordinator, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("coordinator: users repository is required")
	case deps.Sessions == nil:
		return nil, errors.New("coordinator: session store is required")
	case deps.Credentials == nil:
		return nil, errors.New("coordinator: credential store is required")
	case deps.Specialists == nil:
		return nil, errors.New("coordinator: specialist registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.FanOutLimit <= 0 {
		opts.FanOutLimit = def.FanOutLimit
	}
	if opts.SpecialistTimeout <= 0 {
		opts.SpecialistTimeout = def.SpecialistTimeout
	}
	if opts.CredentialTimeout <= 0 {
		opts.CredentialTimeout = def.CredentialTimeout
	}
	if opts.ActivityWindow <= 0 {
		opts.ActivityWindow = def.ActivityWindow
	}

	c := &Coordinator{
		users:       deps.Users,
		sessions:    deps.Sessions,
		creds:       deps.Credentials,
		specialists: deps.Specialists,
		onboarding:  deps.Onboarding,
		updater:     deps.Updater,
		log:         deps.Log,
		activity:    deps.Activity,
		sources:     deps.ActivitySources,
		metrics:     deps.Metrics,
		counter:     deps.Counter,
		tracer:      deps.Tracer,
		now:         deps.Clock,
		opts:        opts,
		locks:       newKeyedMutex(),
		logger:      logger.With(zap.String("component", "coordinator")),
	}
	if c.onboarding == nil {
		c.onboarding = onboarding.NewMachine(deps.Credentials, nil, onboarding.Config{}, logger)
	}
	if c.updater == nil {
		c.updater = onboarding.NewUpdater(deps.Credentials, nil, onboarding.Config{}, logger)
	}
	if c.counter == nil {
		c.counter = session.CharCounter{}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// turn 单个回合的工作状态
type turn struct {
	ev   types.Event
	user *users.User
	sctx *session.Context

	reply      *types.Reply
	entryType  interaction.Type
	details    map[string]any
	failure    types.ErrorCode
	categories []types.Category
	strategy   session.Strategy
	outcome    string

	userDirty bool
	skipSave  bool
	redact    bool
}

func (t *turn) fail(code types.ErrorCode) {
	if t.failure == "" {
		t.failure = code
	}
}

// =============================================================================
// 🎯 Handle
// =============================================================================

// Handle 处理一个入站事件并返回回复。同一用户的事件串行处理。
// 只有事件本身无效或等待用户锁时 ctx 结束才返回 error，其余错误都被限制在
// 本回合内，以降级回复的形式返回。
func (c *Coordinator) Handle(ctx context.Context, ev types.Event) (*types.Reply, error) {
	if ev.UserID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "event has no user id").WithHTTPStatus(http.StatusBadRequest)
	}
	if ev.Kind == "" {
		ev.Kind = types.EventKindMessage
	}
	if !ev.Kind.Valid() {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown event kind %q", ev.Kind)).
			WithHTTPStatus(http.StatusBadRequest)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}

	ctx = ctxkeys.WithUserID(ctx, ev.UserID)
	ctx = ctxkeys.WithEventID(ctx, ev.ID)
	ctx, span := c.tracer.Start(ctx, "coordinator.handle", trace.WithAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.kind", string(ev.Kind)),
	))
	defer span.End()

	unlock, err := c.locks.Lock(ctx, ev.UserID)
	if err != nil {
		span.SetStatus(codes.Error, "lock wait aborted")
		return nil, types.NewError(types.ErrTimeout, "gave up waiting for the user's previous event").
			WithCause(err).WithRetryable(true)
	}
	defer unlock()

	started := time.Now()
	t := &turn{
		ev:      ev,
		details: map[string]any{"event_id": ev.ID, "event_kind": string(ev.Kind)},
	}

	if err := c.resolve(ctx, t); err != nil {
		c.logger.Error("failed to resolve user",
			zap.String("user_id", ev.UserID),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		t.reply = types.TextReply(degradedReply)
		t.entryType = interaction.TypeError
		t.outcome = "error"
		t.details["error"] = err.Error()
		t.fail(errorCode(err, types.ErrServiceUnavailable))
		c.finish(ctx, t, span, started)
		return t.reply, nil
	}

	if d := t.sctx.LastDispatch; d != nil && d.EventID == ev.ID && d.Reply != nil {
		c.logger.Debug("replayed event, returning stored reply",
			zap.String("user_id", ev.UserID),
			zap.String("event_id", ev.ID),
		)
		span.SetAttributes(attribute.Bool("turn.replay", true))
		if c.metrics != nil {
			c.metrics.RecordTurn(string(ev.Kind), string(d.Strategy), "replay", time.Since(started))
		}
		r := *d.Reply
		r.Blocks = append([]types.Block(nil), d.Reply.Blocks...)
		return &r, nil
	}

	c.route(ctx, t)
	c.persist(ctx, t)
	c.finish(ctx, t, span, started)
	return t.reply, nil
}

// resolve 加载用户与会话上下文，二者缺失时创建
func (c *Coordinator) resolve(ctx context.Context, t *turn) error {
	u, created, err := c.users.GetOrCreate(ctx, t.ev.UserID, t.ev.Profile)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if created {
		c.logger.Info("new user", zap.String("user_id", u.ID))
		t.details["first_contact"] = true
	}
	t.user = u

	sctx, err := c.sessions.Load(ctx, u.ID)
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrNotFound):
		sctx = session.New(u.ID)
	case errors.Is(err, persistence.ErrCorrupt):
		c.logger.Warn("session context corrupt, resetting",
			zap.String("user_id", u.ID),
			zap.String("error_code", string(types.ErrSessionContextCorrupt)),
			zap.Error(err),
		)
		t.details["session_reset"] = string(types.ErrSessionContextCorrupt)
		sctx = session.New(u.ID)
	default:
		// 存储暂时不可用：用空上下文完成本回合，但不覆盖已有数据
		c.logger.Error("session context unavailable",
			zap.String("user_id", u.ID),
			zap.Error(err),
		)
		t.details["session_unavailable"] = true
		t.skipSave = true
		t.fail(types.ErrServiceUnavailable)
		sctx = session.New(u.ID)
	}
	t.sctx = sctx
	return nil
}

// route 按事件类型与引导状态选择处理路径
func (c *Coordinator) route(ctx context.Context, t *turn) {
	switch t.ev.Kind {
	case types.EventKindMessage:
		c.recordActivity(ctx, t)
		if !t.user.OnboardingComplete() {
			c.onboard(ctx, t)
			return
		}
		if kind, payload, ok := onboarding.ParseCommand(t.ev.Text); ok {
			c.updateIntegration(ctx, t, kind, payload)
			return
		}
		if kind, ok := onboarding.DetectCredential(t.ev.Text); ok {
			c.updateIntegration(ctx, t, kind, t.ev.Text)
			return
		}
		c.dispatch(ctx, t)

	case types.EventKindWebhook:
		if !t.user.OnboardingComplete() {
			t.entryType = interaction.TypeWebhook
			t.reply = &types.Reply{Silent: true}
			t.outcome = "silent"
			t.details["skipped"] = "onboarding_incomplete"
			return
		}
		c.dispatch(ctx, t)

	case types.EventKindDailyWelcome:
		c.welcome(ctx, t)
	case types.EventKindHourlyCheckin:
		c.checkin(ctx, t)
	case types.EventKindActivityCheck:
		c.activityCheck(ctx, t)
	}
}

func (c *Coordinator) recordActivity(ctx context.Context, t *turn) {
	if c.activity == nil {
		return
	}
	if err := c.activity.Record(ctx, t.user.ID, t.ev.Timestamp); err != nil {
		c.logger.Warn("failed to record activity", zap.String("user_id", t.user.ID), zap.Error(err))
	}
}

// =============================================================================
// 🚪 Onboarding & integration updates
// =============================================================================

func (c *Coordinator) onboard(ctx context.Context, t *turn) {
	t.entryType = interaction.TypeOnboarding
	t.outcome = "onboarding"

	answering := types.OnboardingStep(t.ev.PayloadString("onboarding_step"))
	res, err := c.onboarding.Step(ctx, t.user, t.ev.Text, answering)
	t.redact = res.Input == onboarding.InputCredential
	t.details["from_step"] = string(res.From)
	t.details["to_step"] = string(res.To)
	t.details["input"] = string(res.Input)
	t.details["advanced"] = res.Advanced
	if err != nil {
		c.logger.Error("onboarding step failed",
			zap.String("user_id", t.user.ID),
			zap.String("step", string(res.From)),
			zap.Error(err),
		)
		// 状态可能已被部分修改，不写回用户
		t.reply = types.TextReply("I couldn't save that right now. Please send it again in a moment.")
		t.details["error"] = err.Error()
		t.fail(errorCode(err, types.ErrInternalError))
		t.outcome = "error"
		return
	}

	t.reply = types.TextReply(res.Reply)
	if res.NoOp {
		t.details["no_op"] = true
		return
	}
	t.userDirty = true
	if res.Stuck {
		t.details["error_code"] = string(types.ErrOnboardingStuck)
	}
	if res.Configured != "" {
		t.details["configured"] = string(res.Configured)
	}
	if res.ValidationErr != nil {
		t.details["validation_error"] = res.ValidationErr.Error()
	}
	if res.Completed {
		t.details["completed"] = true
	}
	if c.metrics != nil {
		c.metrics.RecordOnboarding(string(res.From), string(res.To), string(res.Input))
	}
}

func (c *Coordinator) updateIntegration(ctx context.Context, t *turn, kind types.IntegrationKind, payload string) {
	t.entryType = interaction.TypeUpdateIntegration
	t.outcome = "update"
	t.redact = true
	t.details["integration"] = string(kind)

	res, err := c.updater.Update(ctx, t.user, kind, payload)
	if err != nil {
		c.logger.Error("integration update failed",
			zap.String("user_id", t.user.ID),
			zap.String("integration", string(kind)),
			zap.Error(err),
		)
		t.reply = types.TextReply(fmt.Sprintf("I couldn't save your %s credentials right now. Please try again in a moment.", kind.DisplayName()))
		t.details["error"] = err.Error()
		t.fail(errorCode(err, types.ErrInternalError))
		t.outcome = "error"
		return
	}
	t.reply = types.TextReply(res.Reply)
	t.details["configured"] = res.Configured
	if res.ValidationErr != nil {
		t.details["validation_error"] = res.ValidationErr.Error()
		return
	}
	t.userDirty = true
}

// =============================================================================
// 💾 Persist & finish
// =============================================================================

// persist 写回会话上下文与用户记录，失败只记录日志
func (c *Coordinator) persist(ctx context.Context, t *turn) {
	now := c.now()

	if t.ev.Kind == types.EventKindMessage && strings.TrimSpace(t.ev.Text) != "" {
		text := t.ev.Text
		if t.redact || onboarding.ContainsCredential(text) {
			text = redactedTurnText
		}
		t.sctx.AddTurn(session.RoleUser, text, t.ev.Timestamp)
	}
	if t.reply != nil && !t.reply.Silent {
		t.sctx.AddTurn(session.RoleAssistant, t.reply.Text, now)
	}
	t.sctx.LastDispatch = &session.Dispatch{
		EventID:    t.ev.ID,
		Categories: t.categories,
		Strategy:   t.strategy,
		Reply:      t.reply,
		At:         now,
	}
	t.sctx.OnboardingStep = t.user.OnboardingStep

	if abandoned := t.sctx.Prune(c.opts.MaxTurns, c.opts.MaxSubTasks, now); len(abandoned) > 0 {
		c.logger.Info("abandoned sub-tasks while pruning session context",
			zap.String("user_id", t.user.ID),
			zap.Int("count", len(abandoned)),
		)
		t.details["abandoned_sub_tasks"] = len(abandoned)
	}

	if !t.skipSave {
		if err := c.sessions.Save(ctx, t.sctx); err != nil {
			c.logger.Error("failed to save session context", zap.String("user_id", t.user.ID), zap.Error(err))
			t.details["session_save_error"] = err.Error()
			t.fail(types.ErrInternalError)
		}
	}

	var err error
	switch {
	case t.userDirty:
		if t.ev.Kind == types.EventKindMessage {
			at := t.ev.Timestamp
			t.user.LastActiveAt = &at
		}
		err = c.users.SaveState(ctx, t.user)
	case t.ev.Kind == types.EventKindMessage:
		err = c.users.Touch(ctx, t.user.ID, t.ev.Timestamp)
	}
	if err != nil {
		c.logger.Error("failed to save user", zap.String("user_id", t.user.ID), zap.Error(err))
		t.details["user_save_error"] = err.Error()
		t.fail(types.ErrInternalError)
	}
}

// finish 追加唯一一条交互日志并记录指标
func (c *Coordinator) finish(ctx context.Context, t *turn, span trace.Span, started time.Time) {
	if t.entryType == "" {
		t.entryType = interaction.TypeError
	}
	if len(t.categories) > 0 {
		cats := make([]string, len(t.categories))
		for i, cat := range t.categories {
			cats[i] = string(cat)
		}
		t.details["categories"] = cats
		span.SetAttributes(attribute.StringSlice("turn.categories", cats))
	}
	if t.strategy != "" {
		t.details["strategy"] = string(t.strategy)
		span.SetAttributes(attribute.String("turn.strategy", string(t.strategy)))
	}
	if t.outcome == "" {
		t.outcome = "ok"
	}
	if t.failure != "" && t.outcome == "ok" {
		t.outcome = "degraded"
	}
	span.SetAttributes(attribute.String("turn.outcome", t.outcome))
	if t.failure != "" {
		span.SetStatus(codes.Error, string(t.failure))
	}

	if c.log != nil {
		entry := interaction.NewEntry(t.ev.UserID, t.entryType, t.details)
		if t.failure != "" {
			entry = entry.WithFailure(t.failure)
		}
		if err := c.log.Append(ctx, entry); err != nil {
			c.logger.Error("failed to append interaction entry",
				zap.String("user_id", t.ev.UserID),
				zap.String("type", string(t.entryType)),
				zap.Error(err),
			)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordTurn(string(t.ev.Kind), string(t.strategy), t.outcome, time.Since(started))
	}
}

// errorCode 提取错误码，非 *types.Error 时使用 fallback
func errorCode(err error, fallback types.ErrorCode) types.ErrorCode {
	if code := types.GetErrorCode(err); code != "" {
		return code
	}
	return fallback
}

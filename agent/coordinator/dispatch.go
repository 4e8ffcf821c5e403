package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/agent/interaction"
	"github.com/BaSui01/dailycrew/agent/session"
	"github.com/BaSui01/dailycrew/agent/specialist"
	"github.com/BaSui01/dailycrew/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const clarificationPrompt = "I'm not sure how to help with that yet. I can plan your day, break down a project, " +
	"help with code or pull requests, research a topic, draft an email, or give you a motivation boost. " +
	"What would you like to do?"

// slot 一个类别在本回合中的执行位
type slot struct {
	category types.Category
	spec     specialist.Specialist
	desc     specialist.Descriptor
	requires []types.IntegrationKind
	handles  []credential.Handle

	// missing 非空表示缺少必需集成，专家不会被调用
	missing types.IntegrationKind
	// gated 为 true 时 result 已由门控阶段给出
	gated bool

	answer     *session.SubTask
	answerText string

	result   specialist.Result
	duration time.Duration
}

func (s *slot) name() string {
	if s.desc.Name != "" {
		return s.desc.Name
	}
	return string(s.category)
}

// =============================================================================
// 🚦 Dispatch
// =============================================================================

func (c *Coordinator) dispatch(ctx context.Context, t *turn) {
	t.entryType = interaction.TypeDispatch
	if t.ev.Kind == types.EventKindWebhook {
		t.entryType = interaction.TypeWebhook
	}

	ev := t.ev
	rest, matched, handled := c.trackProgress(t)
	if handled {
		return
	}
	if matched {
		ev.Text = rest
	}

	cls := Classify(ev, t.sctx)
	if cls.Ambiguous() {
		if t.ev.Kind == types.EventKindWebhook {
			t.reply = &types.Reply{Silent: true}
			t.outcome = "silent"
			t.details["skipped"] = "unknown_source"
			return
		}
		t.entryType = interaction.TypeClarification
		t.reply = types.TextReply(clarificationPrompt)
		t.outcome = "clarification"
		t.details["error_code"] = string(types.ErrClassificationAmbiguous)
		return
	}

	t.categories = cls.Categories
	t.strategy = ChooseStrategy(cls.Categories)
	slots := c.plan(cls)
	if cls.Answer != nil {
		t.details["answering_sub_task"] = cls.Answer.ID
		for _, s := range slots {
			if s.category == cls.Answer.Category {
				s.answer = cls.Answer
				s.answerText = strings.TrimSpace(t.ev.Text)
			}
		}
	}

	c.gate(ctx, t.user.ID, slots)
	c.execute(ctx, c.baseTask(t), slots, t.strategy)
	c.merge(t, slots)
	c.track(t, slots)
}

// plan 为每个类别解析专家及其集成要求，按优先级排列
func (c *Coordinator) plan(cls Classification) []*slot {
	slots := make([]*slot, 0, len(cls.Categories))
	for _, cat := range cls.Categories {
		s := &slot{category: cat}
		if spec, ok := c.specialists.Get(cat); ok {
			s.spec = spec
			s.desc = spec.Descriptor()
		}
		s.requires = append(s.requires, s.desc.Requires...)
		for _, kind := range cls.Requires[cat] {
			if !containsKind(s.requires, kind) {
				s.requires = append(s.requires, kind)
			}
		}
		slots = append(slots, s)
	}
	return slots
}

// gate 检查每个专家的集成凭证。必需集成缺失时专家被替换为固定提示，
// 查询出错或超时时替换为失败占位。
func (c *Coordinator) gate(ctx context.Context, userID string, slots []*slot) {
	type check struct {
		ok  bool
		err error
	}
	seen := make(map[types.IntegrationKind]check)
	lookup := func(kind types.IntegrationKind) check {
		if r, ok := seen[kind]; ok {
			return r
		}
		ok, err := c.has(ctx, userID, kind)
		seen[kind] = check{ok: ok, err: err}
		return seen[kind]
	}

	for _, s := range slots {
		if s.spec == nil {
			s.gated = true
			s.result = specialist.Failed(types.ErrSpecialistFailed, "no specialist registered for "+string(s.category))
			continue
		}
		for _, kind := range s.requires {
			r := lookup(kind)
			if r.err != nil {
				s.gated = true
				s.result = specialist.FromError(r.err)
				break
			}
			if !r.ok {
				s.gated = true
				s.missing = kind
				break
			}
			s.handles = append(s.handles, credential.NewHandle(c.creds, userID, kind))
		}
		if s.gated {
			continue
		}
		for _, kind := range s.desc.Optional {
			if containsKind(s.requires, kind) {
				continue
			}
			if r := lookup(kind); r.err == nil && r.ok {
				s.handles = append(s.handles, credential.NewHandle(c.creds, userID, kind))
			}
		}
	}
}

// has 在超时内执行一次凭证能力检查
func (c *Coordinator) has(ctx context.Context, userID string, kind types.IntegrationKind) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, c.opts.CredentialTimeout)
	defer cancel()

	ok, err := c.creds.Has(cctx, userID, kind)
	result := "present"
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	case !ok:
		result = "missing"
	}
	if c.metrics != nil {
		c.metrics.RecordCredentialCheck(string(kind), result)
	}
	if err != nil {
		c.logger.Warn("credential check failed",
			zap.String("user_id", userID),
			zap.String("integration", string(kind)),
			zap.Error(err),
		)
	}
	return ok, err
}

func (c *Coordinator) baseTask(t *turn) specialist.Task {
	intent := strings.TrimSpace(t.ev.Text)
	if intent == "" && t.ev.Kind == types.EventKindWebhook {
		for _, key := range []string{"summary", "title", "text"} {
			if v := t.ev.PayloadString(key); v != "" {
				intent = v
				break
			}
		}
	}
	return specialist.Task{
		UserID:   t.user.ID,
		Intent:   intent,
		Now:      t.ev.Timestamp,
		Timezone: t.user.Timezone,
	}
}

// =============================================================================
// ⚙️ Execution
// =============================================================================

// execute 按阶段执行专家。同一阶段并发执行，后续阶段接收前序输出的压缩上下文；
// planner_then_executor 下执行专家只以规划结果为上游。
func (c *Coordinator) execute(ctx context.Context, base specialist.Task, slots []*slot, strategy session.Strategy) {
	if strategy == session.StrategyPlannerThenExecutor && len(slots) == 2 {
		planner, executor := slots[0], slots[1]
		c.runSlot(ctx, planner, base)
		task := base
		if planner.result.OK() {
			task.Upstream = session.Condense([]string{planner.result.Text}, c.opts.ContextBudget, c.counter)
		}
		c.runSlot(ctx, executor, task)
		return
	}

	var upstream []string
	for _, group := range stages(slots) {
		task := base
		task.Upstream = session.Condense(upstream, c.opts.ContextBudget, c.counter)

		var g errgroup.Group
		g.SetLimit(c.opts.FanOutLimit)
		for _, s := range group {
			g.Go(func() error {
				c.runSlot(ctx, s, task)
				return nil
			})
		}
		_ = g.Wait()

		for _, s := range group {
			if s.result.OK() && s.result.Text != "" {
				upstream = append(upstream, s.name()+": "+s.result.Text)
			}
		}
	}
}

// stages 把执行位按阶段分组，组内保持优先级顺序
func stages(slots []*slot) [][]*slot {
	var out [][]*slot
	for stage := specialist.StagePlanning; stage <= specialist.StageReflection; stage++ {
		var group []*slot
		for _, s := range slots {
			if s.desc.Stage == stage || (s.desc.Stage == 0 && stage == specialist.StageExecution) {
				group = append(group, s)
			}
		}
		if len(group) > 0 {
			out = append(out, group)
		}
	}
	return out
}

// runSlot 在超时内调用一个专家，结果写入 slot
func (c *Coordinator) runSlot(ctx context.Context, s *slot, task specialist.Task) {
	if s.gated {
		return
	}
	task.Credentials = s.handles
	if s.answer != nil {
		task.Intent = s.answer.Intent
		task.Answer = s.answerText
	}

	ctx, span := c.tracer.Start(ctx, "specialist.run", trace.WithAttributes(
		attribute.String("specialist.name", s.name()),
		attribute.String("specialist.category", string(s.category)),
	))
	defer span.End()

	rctx, cancel := context.WithTimeout(ctx, c.opts.SpecialistTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan specialist.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- specialist.Failed(types.ErrSpecialistFailed, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- s.spec.Run(rctx, task)
	}()

	var res specialist.Result
	select {
	case res = <-done:
		if res.Status == specialist.StatusFailed && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			res.Code = types.ErrSpecialistTimeout
		}
	case <-rctx.Done():
		res = specialist.FromError(rctx.Err())
	}
	s.result = res
	s.duration = time.Since(started)

	span.SetAttributes(attribute.String("specialist.status", string(res.Status)))
	if res.Status == specialist.StatusFailed {
		span.SetStatus(codes.Error, string(res.Code))
		c.logger.Warn("specialist failed",
			zap.String("user_id", task.UserID),
			zap.String("specialist", s.name()),
			zap.String("error_code", string(res.Code)),
			zap.String("reason", res.Reason),
			zap.Duration("duration", s.duration),
		)
	} else {
		c.logger.Debug("specialist finished",
			zap.String("user_id", task.UserID),
			zap.String("specialist", s.name()),
			zap.String("status", string(res.Status)),
			zap.Duration("duration", s.duration),
		)
	}
	if c.metrics != nil {
		c.metrics.RecordSpecialist(s.name(), string(res.Status), string(res.Code), s.duration)
	}
}

// =============================================================================
// 🧩 Merge
// =============================================================================

// Placeholder 失败专家在合并回复中的占位文本
func Placeholder(name string, code types.ErrorCode) string {
	return fmt.Sprintf("⚠️ %s is unavailable right now (%s).", name, code)
}

// IntegrationRequired 缺少必需集成时替代专家输出的固定文本
func IntegrationRequired(name string, kind types.IntegrationKind) string {
	return fmt.Sprintf("🔌 %s needs %s access, which isn't connected yet. Connect it with `update %s <credentials>` and ask me again.",
		name, kind.DisplayName(), kind)
}

type section struct {
	slot  *slot
	text  string
	block types.Block
}

// merge 按优先级组装回复。NeedsInfo 的追问直接成为回复正文，其余段落保留在 Blocks 中。
func (c *Coordinator) merge(t *turn, slots []*slot) {
	var (
		sections []section
		question string
		runs     []map[string]any
		missing  []string
	)
	for _, s := range slots {
		sec := section{slot: s}
		switch {
		case s.missing != "":
			sec.text = IntegrationRequired(s.name(), s.missing)
			sec.block = types.Block{Type: "integration_required", Title: s.name(), Text: sec.text,
				Fields: map[string]string{"integration": string(s.missing)}}
			missing = append(missing, string(s.missing))
		case s.result.Status == specialist.StatusFailed:
			sec.text = Placeholder(s.name(), s.result.Code)
			sec.block = types.Block{Type: "error", Title: s.name(), Text: sec.text,
				Fields: map[string]string{"code": string(s.result.Code)}}
			t.fail(s.result.Code)
		case s.result.Status == specialist.StatusNeedsInfo:
			if question == "" {
				question = s.result.Question
			}
			sec.text = s.result.Question
			sec.block = types.Block{Type: "question", Title: s.name(), Text: sec.text}
		default:
			sec.text = s.result.Text
			sec.block = types.Block{Type: "section", Title: s.name(), Text: sec.text, Fields: s.result.Attachments}
		}
		sections = append(sections, sec)

		run := map[string]any{"specialist": s.name(), "category": string(s.category)}
		switch {
		case s.missing != "":
			run["status"] = "integration_required"
			run["integration"] = string(s.missing)
		default:
			run["status"] = string(s.result.Status)
			if s.result.Code != "" {
				run["error_code"] = string(s.result.Code)
			}
			if s.duration > 0 {
				run["duration_ms"] = s.duration.Milliseconds()
			}
		}
		runs = append(runs, run)
	}
	t.details["specialists"] = runs
	if len(missing) > 0 {
		t.details["missing_integrations"] = missing
	}

	reply := &types.Reply{}
	switch {
	case question != "":
		reply.Text = question
		for _, sec := range sections {
			if sec.block.Type != "question" {
				reply.Blocks = append(reply.Blocks, sec.block)
			}
		}
		t.outcome = "needs_info"
	case t.strategy == session.StrategyFirstResult && len(sections) == 1:
		reply.Text = sections[0].text
		reply.Blocks = []types.Block{sections[0].block}
	default:
		parts := make([]string, 0, len(sections))
		for _, sec := range sections {
			parts = append(parts, fmt.Sprintf("**%s**\n%s", sec.slot.name(), sec.text))
			reply.Blocks = append(reply.Blocks, sec.block)
		}
		reply.Text = strings.Join(parts, "\n\n")
	}
	t.reply = reply
}

// track 把本回合的专家结果写成子任务
func (c *Coordinator) track(t *turn, slots []*slot) {
	now := c.now()
	for _, s := range slots {
		if s.gated {
			continue
		}
		intent := c.baseTask(t).Intent
		if s.answer != nil {
			intent = s.answer.Intent
			if s.result.Status != specialist.StatusFailed {
				t.sctx.SetSubTaskStatus(s.answer.ID, session.SubTaskDone, now)
			}
		}
		switch s.result.Status {
		case specialist.StatusOutcome:
			t.sctx.OpenSubTask(s.name(), s.category, intent, "", session.SubTaskDone, now)
			for _, title := range s.result.SubTasks {
				t.sctx.OpenSubTask(s.name(), s.category, title, "", session.SubTaskPending, now)
			}
		case specialist.StatusNeedsInfo:
			if s.answerText != "" {
				intent = strings.TrimSpace(intent + "\n" + s.answerText)
			}
			t.sctx.OpenSubTask(s.name(), s.category, intent, s.result.Question, session.SubTaskPending, now)
		}
	}
}

func containsKind(kinds []types.IntegrationKind, kind types.IntegrationKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

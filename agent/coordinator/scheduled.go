package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/dailycrew/agent/activity"
	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/agent/interaction"
	"github.com/BaSui01/dailycrew/agent/onboarding"
	"github.com/BaSui01/dailycrew/agent/session"
	"github.com/BaSui01/dailycrew/agent/specialist"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

const (
	checkinPrompt        = "How's your work going? Is there anything I can help with?"
	activityNudge        = "I noticed your activity has decreased."
	activityOffer        = "Would you like some help with your current tasks?"
	githubNudge          = "I noticed your GitHub activity has decreased."
	githubOffer          = "Want to break your current coding task into smaller pieces?"
	maxListedSubTasks    = 5
	subTaskSummaryLength = 80
)

// =============================================================================
// ⏰ Scheduled triggers
// =============================================================================

// welcome 每日欢迎：问候、规划专家的当日计划以及未完成的子任务
func (c *Coordinator) welcome(ctx context.Context, t *turn) {
	t.entryType = interaction.TypeWelcome
	u := t.user

	if !u.OnboardingComplete() {
		if u.OnboardingStep == types.StepWelcome {
			t.silence("onboarding_not_started")
			return
		}
		t.reply = types.TextReply("Good morning! We still have a little setup left before I can plan your day.\n\n" +
			onboarding.Prompt(u.OnboardingStep))
		t.details["onboarding_step"] = string(u.OnboardingStep)
		t.outcome = "onboarding"
		return
	}

	greeting := "Good morning! Here's your daily summary:"
	if u.DisplayName != "" {
		greeting = fmt.Sprintf("Good morning, %s! Here's your daily summary:", u.DisplayName)
	}
	parts := []string{greeting}

	t.categories = []types.Category{types.CategoryPlanning}
	slots := c.plan(Classification{Categories: t.categories})
	c.gate(ctx, u.ID, slots)
	base := c.baseTask(t)
	base.Intent = ""
	c.execute(ctx, base, slots, session.StrategyFirstResult)

	s := slots[0]
	switch {
	case s.missing != "":
		parts = append(parts, IntegrationRequired(s.name(), s.missing))
	case s.result.Status == specialist.StatusFailed:
		parts = append(parts, Placeholder(s.name(), s.result.Code))
		t.fail(s.result.Code)
	case s.result.Status == specialist.StatusNeedsInfo:
		parts = append(parts, "Nothing is on your calendar yet. Let's plan what you'll do today! "+s.result.Question)
		t.sctx.OpenSubTask(s.name(), s.category, "daily plan", s.result.Question, session.SubTaskPending, c.now())
	default:
		parts = append(parts, s.result.Text)
	}
	t.details["planner_status"] = string(s.result.Status)

	parts = append(parts, openSubTaskList(t.sctx))
	t.reply = types.TextReply(strings.Join(parts, "\n\n"))
}

// checkin 整点签到，不调用任何专家
func (c *Coordinator) checkin(_ context.Context, t *turn) {
	t.entryType = interaction.TypeCheckin
	if !t.user.OnboardingComplete() {
		t.silence("onboarding_incomplete")
		return
	}

	open := t.sctx.OpenSubTasks()
	t.details["open_sub_tasks"] = len(open)

	if q, ok := t.sctx.PendingQuestion(); ok {
		t.reply = types.TextReply(fmt.Sprintf("Quick check-in! %s still needs an answer from you: %s", q.Specialist, q.Question))
		return
	}
	if len(open) == 0 {
		t.reply = types.TextReply(checkinPrompt)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Quick check-in! You have %d open task(s):\n", len(open))
	writeSubTasks(&b, open)
	b.WriteString("\n")
	b.WriteString(progressHint)
	b.WriteString("\n")
	b.WriteString(checkinPrompt)
	t.reply = types.TextReply(b.String())
}

// activityCheck 活跃度下降时给出激励提示，否则静默
func (c *Coordinator) activityCheck(ctx context.Context, t *turn) {
	t.entryType = interaction.TypeActivityCheck
	if !t.user.OnboardingComplete() {
		t.silence("onboarding_incomplete")
		return
	}
	if c.activity == nil {
		t.silence("activity_tracking_disabled")
		return
	}

	d, err := activity.Check(ctx, c.activity, t.user.ID, t.ev.Timestamp, c.opts.ActivityWindow)
	if err != nil {
		c.logger.Warn("activity check failed", zap.String("user_id", t.user.ID), zap.Error(err))
		t.silence("activity_unavailable")
		t.details["error"] = err.Error()
		t.fail(types.ErrServiceUnavailable)
		return
	}
	t.details["previous"] = d.Previous
	t.details["current"] = d.Current
	for _, src := range c.sources {
		sd, ok := c.sourceDecline(ctx, t, src)
		if ok && sd.Declined && !d.Declined {
			d = sd
		}
	}
	t.details["declined"] = d.Declined
	if !d.Declined {
		t.silence("")
		return
	}
	t.details["reason"] = d.Source

	t.categories = []types.Category{types.CategoryMotivation}
	slots := c.plan(Classification{Categories: t.categories})
	c.gate(ctx, t.user.ID, slots)
	base := c.baseTask(t)
	base.Intent = ""
	c.execute(ctx, base, slots, session.StrategyFirstResult)

	nudge, offer := activityNudge, activityOffer
	if d.Source == activity.SourceGitHub {
		nudge, offer = githubNudge, githubOffer
	}
	parts := []string{nudge}
	if s := slots[0]; s.result.OK() {
		parts = append(parts, s.result.Text)
	} else if s.result.Status == specialist.StatusFailed {
		t.fail(s.result.Code)
	}
	parts = append(parts, offer)
	t.reply = types.TextReply(strings.Join(parts, "\n\n"))
}

// sourceDecline 查询一个外部来源；用户未配置集成或查询失败时 ok 为 false，失败只记录不中断
func (c *Coordinator) sourceDecline(ctx context.Context, t *turn, src activity.Source) (activity.Decline, bool) {
	kind := src.Requires()
	if has, err := c.has(ctx, t.user.ID, kind); err != nil || !has {
		return activity.Decline{}, false
	}
	sctx, cancel := context.WithTimeout(ctx, c.opts.SpecialistTimeout)
	defer cancel()

	d, err := activity.CheckSource(sctx, src, credential.NewHandle(c.creds, t.user.ID, kind), t.ev.Timestamp, c.opts.ActivityWindow)
	if err != nil {
		c.logger.Warn("activity source failed",
			zap.String("user_id", t.user.ID),
			zap.String("source", src.Name()),
			zap.Error(err))
		t.details[src.Name()+"_error"] = err.Error()
		return activity.Decline{}, false
	}
	t.details[src.Name()] = map[string]any{
		"previous": d.Previous,
		"current":  d.Current,
		"declined": d.Declined,
	}
	return d, true
}

// silence 记录但不投递的回复
func (t *turn) silence(reason string) {
	t.reply = &types.Reply{Silent: true}
	t.outcome = "silent"
	if reason != "" {
		t.details["skipped"] = reason
	}
}

func openSubTaskList(sctx *session.Context) string {
	open := sctx.OpenSubTasks()
	if len(open) == 0 {
		return "**Pending Tasks:** No pending tasks found."
	}
	var b strings.Builder
	b.WriteString("**Pending Tasks:**\n")
	writeSubTasks(&b, open)
	return strings.TrimRight(b.String(), "\n")
}

func writeSubTasks(b *strings.Builder, open []session.SubTask) {
	for i, st := range open {
		if i == maxListedSubTasks {
			fmt.Fprintf(b, "- …and %d more\n", len(open)-maxListedSubTasks)
			break
		}
		if st.Status == session.SubTaskInProgress {
			fmt.Fprintf(b, "- %s (%s, in progress)\n", summarize(st.Intent), st.Specialist)
			continue
		}
		fmt.Fprintf(b, "- %s (%s)\n", summarize(st.Intent), st.Specialist)
	}
}

func summarize(intent string) string {
	line := strings.TrimSpace(intent)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return "untitled task"
	}
	r := []rune(line)
	if len(r) > subTaskSummaryLength {
		return string(r[:subTaskSummaryLength-1]) + "…"
	}
	return line
}

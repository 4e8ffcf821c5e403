package specialist

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/dailycrew/integrations/google"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

const (
	workdayStartHour   = 9
	workdayEndHour     = 17
	defaultTaskMinutes = 30
)

var planningPrompts = []string{
	"What are your top priorities for today?",
	"How would you like to organize your tasks for maximum productivity?",
	"What's the most important thing you want to accomplish today?",
	"Would you like help breaking down your day into manageable chunks?",
	"Let's prioritize your tasks and create a schedule that works for you. What's on your list?",
}

// CalendarReader 读取用户某天的日历事件
type CalendarReader interface {
	Events(ctx context.Context, payload string, day time.Time, loc *time.Location) ([]google.Event, error)
}

// =============================================================================
// 🗓️ Planner
// =============================================================================

// Planner 根据任务条目与日历生成当天的时间块计划
type Planner struct {
	calendar CalendarReader
	logger   *zap.Logger
}

// NewPlanner 创建计划专家，calendar 为空时只按任务条目排程
func NewPlanner(calendar CalendarReader, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{calendar: calendar, logger: logger.With(zap.String("component", "planner"))}
}

// Descriptor implements Specialist.
func (p *Planner) Descriptor() Descriptor {
	return Descriptor{
		Name:     "Planner",
		Category: types.CategoryPlanning,
		Stage:    StagePlanning,
		Optional: []types.IntegrationKind{types.IntegrationGoogle},
	}
}

// PlanningPrompt 返回当天固定的计划引导语
func PlanningPrompt(day time.Time) string {
	return pick(planningPrompts, day.Format("2006-01-02"))
}

// Run implements Specialist.
func (p *Planner) Run(ctx context.Context, task Task) Result {
	loc := task.Location()
	now := task.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	items := listItems(task.Intent)
	if task.Answer != "" {
		items = append(items, splitList(task.Answer)...)
	}

	meetings, allDay, note := p.meetings(ctx, task, now, loc)
	if err := ctx.Err(); err != nil {
		return FromError(err)
	}
	if len(items) == 0 && len(meetings) == 0 && len(allDay) == 0 {
		return NeedsInfo(PlanningPrompt(now))
	}

	blocks, later := buildSchedule(now, items, meetings)

	var b strings.Builder
	b.WriteString("Here's a suggested plan for your day:\n\n")
	for _, ev := range allDay {
		fmt.Fprintf(&b, "**All day: %s**\n\n", ev.Summary)
	}
	for _, blk := range blocks {
		span := blk.start.Format("15:04") + " - " + blk.end.Format("15:04")
		if blk.meeting != "" {
			fmt.Fprintf(&b, "**%s: %s**\n\n", span, blk.meeting)
			continue
		}
		fmt.Fprintf(&b, "**%s: Focus Work**\n", span)
		if len(blk.tasks) == 0 {
			b.WriteString("- No specific tasks assigned\n")
		}
		for _, t := range blk.tasks {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}
	if len(later) > 0 {
		b.WriteString("**Later:**\n")
		for _, t := range later {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}
	if note != "" {
		b.WriteString(note + "\n")
	}

	return Outcome(strings.TrimRight(b.String(), "\n")).
		WithAttachment("blocks", strconv.Itoa(len(blocks))).
		WithAttachment("meetings", strconv.Itoa(len(meetings)+len(allDay)))
}

func (p *Planner) meetings(ctx context.Context, task Task, day time.Time, loc *time.Location) (timed, allDay []google.Event, note string) {
	h, ok := task.Handle(types.IntegrationGoogle)
	if !ok || p.calendar == nil {
		return nil, nil, ""
	}
	payload, err := h.Open(ctx)
	if err != nil {
		p.logger.Warn("open calendar credential failed", zap.String("user_id", task.UserID), zap.Error(err))
		return nil, nil, "_Your calendar could not be loaded right now._"
	}
	events, err := p.calendar.Events(ctx, payload.Reveal(), day, loc)
	if err != nil {
		p.logger.Warn("load calendar events failed",
			zap.String("user_id", task.UserID),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		return nil, nil, "_Your calendar could not be loaded right now._"
	}
	for _, ev := range events {
		if ev.AllDay {
			allDay = append(allDay, ev)
		} else {
			timed = append(timed, ev)
		}
	}
	return timed, allDay, ""
}

type planBlock struct {
	start, end time.Time
	meeting    string
	tasks      []string
}

// buildSchedule lays focus blocks around meetings inside the workday and
// assigns items in order; items that do not fit are returned as later.
func buildSchedule(day time.Time, items []string, meetings []google.Event) ([]planBlock, []string) {
	loc := day.Location()
	start := time.Date(day.Year(), day.Month(), day.Day(), workdayStartHour, 0, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), workdayEndHour, 0, 0, 0, loc)

	sorted := append([]google.Event(nil), meetings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	queue := append([]string(nil), items...)
	cursor := start
	var blocks []planBlock

	fill := func(to time.Time) {
		if !to.After(cursor) {
			return
		}
		blk := planBlock{start: cursor, end: to}
		avail := int(to.Sub(cursor).Minutes())
		for len(queue) > 0 && avail >= defaultTaskMinutes {
			blk.tasks = append(blk.tasks, queue[0])
			queue = queue[1:]
			avail -= defaultTaskMinutes
		}
		blocks = append(blocks, blk)
	}

	for _, m := range sorted {
		if !m.End.After(start) || !m.Start.Before(end) {
			continue
		}
		ms := m.Start.In(loc)
		if ms.Before(cursor) {
			ms = cursor
		}
		fill(ms)
		me := m.End.In(loc)
		if me.After(end) {
			me = end
		}
		if me.After(ms) {
			title := m.Summary
			if title == "" {
				title = "Untitled Meeting"
			}
			blocks = append(blocks, planBlock{start: ms, end: me, meeting: title})
		}
		if me.After(cursor) {
			cursor = me
		}
	}
	fill(end)
	return blocks, queue
}

package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/dailycrew/config"
	"github.com/BaSui01/dailycrew/types"
)

// Rule 用户本地时间的每日触发时刻
type Rule struct {
	Kind   types.EventKind
	Hour   int
	Minute int
}

func (r Rule) String() string {
	return fmt.Sprintf("%s@%02d:%02d", r.Kind, r.Hour, r.Minute)
}

// RulesFromConfig 欢迎在 WelcomeHour 整点，签到在 [CheckinStartHour, CheckinEndHour] 每个整点，
// 活跃度检查在 ActivityHours 的 :30。
func RulesFromConfig(cfg config.SchedulerConfig) []Rule {
	rules := []Rule{{Kind: types.EventKindDailyWelcome, Hour: cfg.WelcomeHour}}
	for h := cfg.CheckinStartHour; h <= cfg.CheckinEndHour; h++ {
		rules = append(rules, Rule{Kind: types.EventKindHourlyCheckin, Hour: h})
	}
	for _, h := range cfg.ActivityHours {
		rules = append(rules, Rule{Kind: types.EventKindActivityCheck, Hour: h, Minute: 30})
	}
	return rules
}

// Occurrence 一次具体的触发
type Occurrence struct {
	Rule Rule
	At   time.Time
}

// Due 返回 (from, to] 内在 loc 本地时间到期的触发，按时间排序
func Due(rules []Rule, from, to time.Time, loc *time.Location, weekdaysOnly bool) []Occurrence {
	if !to.After(from) {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	start := from.In(loc)
	end := to.In(loc)

	var out []Occurrence
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for !day.After(end) {
		if !weekdaysOnly || isWeekday(day.Weekday()) {
			for _, r := range rules {
				at := time.Date(day.Year(), day.Month(), day.Day(), r.Hour, r.Minute, 0, 0, loc)
				if at.After(from) && !at.After(to) {
					out = append(out, Occurrence{Rule: r, At: at})
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

// eligible 欢迎发给已开始引导的用户，签到与活跃度检查只发给完成引导的用户
func eligible(kind types.EventKind, status types.OnboardingStatus) bool {
	switch kind {
	case types.EventKindDailyWelcome:
		return status != types.OnboardingNotStarted
	default:
		return status == types.OnboardingComplete
	}
}

// EventID 定时事件的确定性 ID，同一用户同一时刻的同类事件 ID 相同
func EventID(kind types.EventKind, userID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s", kind, userID, at.UTC().Format(time.RFC3339))
}

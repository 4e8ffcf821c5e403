package coordinator

import (
	"sort"
	"strings"

	"github.com/BaSui01/dailycrew/agent/session"
	"github.com/BaSui01/dailycrew/types"
)

// =============================================================================
// 🧭 Classification
// =============================================================================

// 短语以 * 结尾表示词首前缀匹配，否则为整词匹配
var categoryPhrases = []struct {
	category types.Category
	phrases  []string
}{
	{types.CategoryPlanning, []string{
		"plan*", "schedul*", "agenda", "priorit*", "my day", "todo", "to-do", "to do list",
		"timebox*", "organize my", "organise my", "what should i do",
	}},
	{types.CategoryDecomposition, []string{
		"break down", "break it down", "breakdown", "decompos*", "subtask*", "sub-task*",
		"split up", "split into", "milestone*", "project*", "steps for", "steps to", "roadmap*",
	}},
	{types.CategoryCode, []string{
		"code", "coding", "bug*", "debug*", "pull request*", "pr", "prs", "commit*", "repo", "repos",
		"repository", "repositories", "stack trace", "exception*", "refactor*", "compile*",
		"unit test*", "test coverage",
	}},
	{types.CategoryResearch, []string{
		"research*", "look up", "look into", "investigat*", "find out", "learn about", "read up",
		"compare", "comparison", "pros and cons", "explore",
	}},
	{types.CategoryCommunication, []string{
		"email*", "e-mail*", "mail", "inbox", "meeting*", "draft*", "invite*", "reply to",
		"write to", "send a message",
	}},
	{types.CategoryMotivation, []string{
		"motivat*", "stuck", "overwhelm*", "stress*", "tired", "burnout", "burned out", "burnt out",
		"exhausted", "procrastinat*", "anxious", "anxiety", "encourag*", "need a break",
		"take a break", "can't focus", "cannot focus", "feeling down", "celebrat*",
		"i finished", "i completed", "i shipped",
	}},
}

// 文本中出现集成名称时追加类别以及该类别对集成的显式要求
var integrationMentions = []struct {
	phrase   string
	category types.Category
	kind     types.IntegrationKind
}{
	{"github", types.CategoryCode, types.IntegrationGitHub},
	{"youtrack", types.CategoryDecomposition, types.IntegrationYouTrack},
	{"calendar", types.CategoryPlanning, types.IntegrationGoogle},
	{"gmail", types.CategoryCommunication, types.IntegrationGoogle},
}

// webhook 来源到类别的映射
var webhookCategories = map[types.IntegrationKind]types.Category{
	types.IntegrationGitHub:   types.CategoryCode,
	types.IntegrationYouTrack: types.CategoryDecomposition,
	types.IntegrationGoogle:   types.CategoryPlanning,
}

// followUpWords 待回答子任务存在时，不超过该词数且未指向其他类别的消息视为回答
const followUpWords = 12

// Classification 分类结果
type Classification struct {
	// Categories 按固定优先级排序且去重
	Categories []types.Category
	// Requires 因文本提及或 webhook 来源而追加的集成要求
	Requires map[types.Category][]types.IntegrationKind
	// Answer 非空表示消息是对该待回答子任务的回复
	Answer *session.SubTask
}

// Ambiguous 没有任何类别命中
func (c Classification) Ambiguous() bool {
	return c.Answer == nil && len(c.Categories) == 0
}

func (c *Classification) add(category types.Category) {
	for _, existing := range c.Categories {
		if existing == category {
			return
		}
	}
	c.Categories = append(c.Categories, category)
}

func (c *Classification) require(category types.Category, kind types.IntegrationKind) {
	c.add(category)
	if c.Requires == nil {
		c.Requires = make(map[types.Category][]types.IntegrationKind)
	}
	for _, k := range c.Requires[category] {
		if k == kind {
			return
		}
	}
	c.Requires[category] = append(c.Requires[category], kind)
}

// Classify 把事件映射到任务类别。结果只取决于事件文本、事件类型、
// webhook 来源以及会话上下文中的待回答子任务。
func Classify(ev types.Event, sctx *session.Context) Classification {
	var c Classification

	switch ev.Kind {
	case types.EventKindDailyWelcome:
		c.add(types.CategoryPlanning)
		return c
	case types.EventKindActivityCheck:
		c.add(types.CategoryMotivation)
		return c
	case types.EventKindHourlyCheckin:
		return c
	case types.EventKindWebhook:
		if kind, ok := webhookIntegration(ev); ok {
			c.require(webhookCategories[kind], kind)
		}
	}

	text := strings.ToLower(strings.TrimSpace(ev.Text))
	if text != "" {
		for _, rule := range categoryPhrases {
			for _, p := range rule.phrases {
				if containsPhrase(text, p) {
					c.add(rule.category)
					break
				}
			}
		}
		for _, m := range integrationMentions {
			if containsPhrase(text, m.phrase) {
				c.require(m.category, m.kind)
			}
		}
	}

	if ev.Kind == types.EventKindMessage && sctx != nil {
		if st, ok := sctx.PendingQuestion(); ok && isFollowUp(text, c.Categories, st) {
			return Classification{Categories: []types.Category{st.Category}, Answer: &st}
		}
	}

	sort.SliceStable(c.Categories, func(i, j int) bool {
		return c.Categories[i].Priority() < c.Categories[j].Priority()
	})
	return c
}

func isFollowUp(text string, categories []types.Category, st session.SubTask) bool {
	if text == "" {
		return false
	}
	if len(categories) == 0 {
		return true
	}
	return len(categories) == 1 && categories[0] == st.Category && len(strings.Fields(text)) <= followUpWords
}

func webhookIntegration(ev types.Event) (types.IntegrationKind, bool) {
	for _, key := range []string{"integration", "source"} {
		if v := ev.PayloadString(key); v != "" {
			if kind, ok := types.ParseIntegrationKind(v); ok {
				_, mapped := webhookCategories[kind]
				return kind, mapped
			}
		}
	}
	return "", false
}

// containsPhrase 在小写文本中按词边界查找短语
func containsPhrase(text, phrase string) bool {
	prefix := strings.HasSuffix(phrase, "*")
	p := strings.TrimSuffix(phrase, "*")
	if p == "" {
		return false
	}
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], p)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(p)
		if (start == 0 || !isWordByte(text[start-1])) && (prefix || end == len(text) || !isWordByte(text[end])) {
			return true
		}
		i = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b == '_' || b >= 0x80
}

// =============================================================================
// 🔀 Strategy
// =============================================================================

// executorCategories 可以接在规划之后执行的类别
var executorCategories = map[types.Category]bool{
	types.CategoryCode:          true,
	types.CategoryResearch:      true,
	types.CategoryCommunication: true,
}

// ChooseStrategy 根据命中的类别选择合并策略
func ChooseStrategy(categories []types.Category) session.Strategy {
	switch {
	case len(categories) == 1:
		return session.StrategyFirstResult
	case len(categories) == 2 && plannerThenExecutor(categories):
		return session.StrategyPlannerThenExecutor
	default:
		return session.StrategyConcatenate
	}
}

func plannerThenExecutor(categories []types.Category) bool {
	var planning, executors int
	for _, c := range categories {
		switch {
		case c == types.CategoryPlanning:
			planning++
		case executorCategories[c]:
			executors++
		}
	}
	return planning == 1 && executors == 1
}

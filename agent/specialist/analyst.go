package specialist

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/dailycrew/integrations/youtrack"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

const trackerIssueLimit = 5

var analystCues = []string{
	"break down", "breakdown", "decompose", "split up", "subtasks for", "tasks for",
	"analyze", "analyse", "steps for", "steps to",
}

var vagueSubjects = map[string]bool{
	"": true, "it": true, "that": true, "project": true, "task": true, "tasks": true,
	"work": true, "stuff": true, "things": true,
}

type phase struct {
	title       string
	description string
	effort      string
	role        string
	dependsOn   string
}

var decompositionPhases = []phase{
	{"Research and planning", "Research existing solutions and plan the implementation approach", "2 hours", "Lead Developer", ""},
	{"Implementation", "Implement the core functionality", "4 hours", "Developer", "Research and planning"},
	{"Testing", "Test the implementation and fix any issues", "2 hours", "QA Engineer", "Implementation"},
	{"Documentation", "Document the implementation and usage", "1 hour", "Technical Writer", "Implementation"},
}

// IssueTracker 读取用户未关闭的问题
type IssueTracker interface {
	OpenIssues(ctx context.Context, payload string, limit int) ([]youtrack.Issue, error)
}

// =============================================================================
// 🧩 Analyst
// =============================================================================

// Analyst 把意图拆解为有序子任务
type Analyst struct {
	tracker IssueTracker
	logger  *zap.Logger
}

// NewAnalyst 创建拆解专家
func NewAnalyst(tracker IssueTracker, logger *zap.Logger) *Analyst {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyst{tracker: tracker, logger: logger.With(zap.String("component", "analyst"))}
}

// Descriptor implements Specialist.
func (a *Analyst) Descriptor() Descriptor {
	return Descriptor{
		Name:     "Analyst",
		Category: types.CategoryDecomposition,
		Stage:    StageAnalysis,
		Optional: []types.IntegrationKind{types.IntegrationYouTrack},
	}
}

// Run implements Specialist.
func (a *Analyst) Run(ctx context.Context, task Task) Result {
	var (
		b      strings.Builder
		titles []string
	)

	if items := listItems(task.Intent); len(items) > 0 {
		fmt.Fprintf(&b, "Here's your list as ordered subtasks:\n\n")
		for i, item := range items {
			fmt.Fprintf(&b, "**Subtask %d: %s**\n", i+1, item)
			if i == 0 {
				b.WriteString("Dependencies: None\n\n")
			} else {
				fmt.Fprintf(&b, "Dependencies: %s\n\n", items[i-1])
			}
		}
		titles = items
	} else {
		subject := a.subject(task)
		if vagueSubjects[strings.ToLower(subject)] {
			return NeedsInfo("What specific project or task would you like me to break down?")
		}
		fmt.Fprintf(&b, "I've decomposed the task '%s' into the following subtasks:\n\n", subject)
		for i, ph := range decompositionPhases {
			fmt.Fprintf(&b, "**Subtask %d: %s**\n", i+1, ph.title)
			fmt.Fprintf(&b, "Description: %s\n", ph.description)
			fmt.Fprintf(&b, "Effort: %s\n", ph.effort)
			if ph.dependsOn == "" {
				b.WriteString("Dependencies: None\n")
			} else {
				fmt.Fprintf(&b, "Dependencies: %s\n", ph.dependsOn)
			}
			fmt.Fprintf(&b, "Assignee Role: %s\n\n", ph.role)
			titles = append(titles, ph.title+": "+subject)
		}
	}

	if task.Upstream != "" {
		fmt.Fprintf(&b, "Fits around: %s\n\n", truncate(firstLine(task.Upstream), 80))
	}

	issues, note := a.openIssues(ctx, task)
	if err := ctx.Err(); err != nil {
		return FromError(err)
	}
	if len(issues) > 0 {
		b.WriteString("**Open YouTrack issues:**\n")
		for _, is := range issues {
			fmt.Fprintf(&b, "- %s: %s\n", is.ID, is.Summary)
		}
	}
	if note != "" {
		b.WriteString(note + "\n")
	}

	return Outcome(strings.TrimRight(b.String(), "\n")).
		WithSubTasks(titles...).
		WithAttachment("subtasks", strconv.Itoa(len(titles)))
}

func (a *Analyst) subject(task Task) string {
	if task.Answer != "" {
		return cleanItem(task.Answer)
	}
	if topic, ok := topicAfter(task.Intent, analystCues); ok {
		return topic
	}
	return trimConnectives(task.Intent)
}

func (a *Analyst) openIssues(ctx context.Context, task Task) ([]youtrack.Issue, string) {
	h, ok := task.Handle(types.IntegrationYouTrack)
	if !ok || a.tracker == nil {
		return nil, ""
	}
	payload, err := h.Open(ctx)
	if err != nil {
		a.logger.Warn("open youtrack credential failed", zap.String("user_id", task.UserID), zap.Error(err))
		return nil, "_YouTrack issues could not be loaded right now._"
	}
	issues, err := a.tracker.OpenIssues(ctx, payload.Reveal(), trackerIssueLimit)
	if err != nil {
		a.logger.Warn("load youtrack issues failed",
			zap.String("user_id", task.UserID),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		return nil, "_YouTrack issues could not be loaded right now._"
	}
	if len(issues) == 0 {
		return nil, "No open YouTrack issues are assigned to you."
	}
	return issues, ""
}

package specialist

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/dailycrew/integrations/github"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

const codeHostLimit = 5

// CodeHost 源码托管平台
type CodeHost interface {
	CheckCredential(ctx context.Context, token string) (*github.User, error)
	AssignedIssues(ctx context.Context, token string, limit int) ([]github.Issue, error)
	OpenPullRequests(ctx context.Context, token, login string, limit int) ([]github.Issue, error)
}

type guidance struct {
	words []string
	text  string
}

var developerGuidance = []guidance{
	{
		words: []string{"bug", "error", "fail", "crash", "debug", "fix", "exception", "panic"},
		text: "**Debugging checklist:**\n" +
			"1. Reproduce the failure with the smallest input you can.\n" +
			"2. Read the full error and find the first frame in your own code.\n" +
			"3. Check what changed recently (`git log -p`, `git bisect`).\n" +
			"4. Write a failing test before changing the code.",
	},
	{
		words: []string{"review", "pull request", " pr", "merge"},
		text: "**Review checklist:**\n" +
			"1. Read the description and linked issue first.\n" +
			"2. Check tests cover the changed behaviour.\n" +
			"3. Look for error handling and edge cases before style.\n" +
			"4. Leave one summary comment with the blocking points.",
	},
	{
		words: []string{"test", "coverage"},
		text: "**Testing tip:** start from the behaviour a user would notice, then cover the error paths. " +
			"Table-driven cases keep edge cases cheap to add.",
	},
	{
		words: []string{"refactor", "clean up", "cleanup", "improve"},
		text: "**Refactoring tip:** make sure the code is covered by tests first, then change structure and behaviour in separate commits.",
	},
}

// =============================================================================
// 💻 Developer
// =============================================================================

// Developer 开发助手，需要 GitHub 凭据
type Developer struct {
	host   CodeHost
	logger *zap.Logger
}

// NewDeveloper 创建开发助手
func NewDeveloper(host CodeHost, logger *zap.Logger) *Developer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Developer{host: host, logger: logger.With(zap.String("component", "developer"))}
}

// Descriptor implements Specialist.
func (d *Developer) Descriptor() Descriptor {
	return Descriptor{
		Name:     "Developer Assistant",
		Category: types.CategoryCode,
		Stage:    StageExecution,
		Requires: []types.IntegrationKind{types.IntegrationGitHub},
	}
}

// Run implements Specialist.
func (d *Developer) Run(ctx context.Context, task Task) Result {
	h, ok := task.Handle(types.IntegrationGitHub)
	if !ok {
		return Failed(types.ErrCredentialMissing, "github credential not provided")
	}
	if d.host == nil {
		return Failed(types.ErrServiceUnavailable, "github client not configured")
	}

	payload, err := h.Open(ctx)
	if err != nil {
		return FromError(err)
	}
	token := payload.Reveal()

	user, err := d.host.CheckCredential(ctx, token)
	if err != nil {
		return FromError(err)
	}
	issues, err := d.host.AssignedIssues(ctx, token, codeHostLimit)
	if err != nil {
		return FromError(err)
	}
	prs, err := d.host.OpenPullRequests(ctx, token, user.Login, codeHostLimit)
	if err != nil {
		return FromError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**GitHub (@%s)**\n", user.Login)
	writeIssueList(&b, "Assigned issues", issues)
	writeIssueList(&b, "Open pull requests", prs)

	if tip := developerTip(task.Intent + " " + task.Answer); tip != "" {
		b.WriteString("\n" + tip + "\n")
	} else if len(issues) > 0 {
		fmt.Fprintf(&b, "\nStart with %s#%d or tell me which one you want to dig into.\n", issues[0].Repo(), issues[0].Number)
	}

	return Outcome(strings.TrimRight(b.String(), "\n")).
		WithAttachment("login", user.Login).
		WithAttachment("issues", strconv.Itoa(len(issues))).
		WithAttachment("pull_requests", strconv.Itoa(len(prs)))
}

func writeIssueList(b *strings.Builder, title string, items []github.Issue) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s#%d %s\n", it.Repo(), it.Number, it.Title)
	}
}

func developerTip(text string) string {
	lower := " " + strings.ToLower(text)
	for _, g := range developerGuidance {
		if containsAny(lower, g.words...) {
			return g.text
		}
	}
	return ""
}

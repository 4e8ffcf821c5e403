package activity

import (
	"context"
	"time"

	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/integrations/github"
	"github.com/BaSui01/dailycrew/types"
)

// SourceGitHub GitHub 提交、issue 与 PR 计数的来源名
const SourceGitHub = "github_activity"

// Source 外部平台上的活跃计数，仅对已配置 Requires 集成的用户查询
type Source interface {
	Name() string
	Requires() types.IntegrationKind
	Count(ctx context.Context, h credential.Handle, from, to time.Time) (int64, error)
}

// CheckSource 按 Check 的窗口比较外部平台的计数
func CheckSource(ctx context.Context, src Source, h credential.Handle, now time.Time, window time.Duration) (Decline, error) {
	start, mid, end := Windows(now, window)
	prev, err := src.Count(ctx, h, start, mid)
	if err != nil {
		return Decline{}, err
	}
	cur, err := src.Count(ctx, h, mid, end)
	if err != nil {
		return Decline{}, err
	}
	d := Evaluate(prev, cur)
	d.Source = src.Name()
	return d, nil
}

// =============================================================================
// 🐙 GitHubSource
// =============================================================================

// GitHubCounter *github.Client 实现了它
type GitHubCounter interface {
	Activity(ctx context.Context, token string, from, to time.Time) (github.Activity, error)
}

// GitHubSource 把提交、issue 与 PR 的总数作为活跃度
type GitHubSource struct {
	client GitHubCounter
}

// NewGitHubSource 创建 GitHub 活跃度来源
func NewGitHubSource(client GitHubCounter) *GitHubSource {
	return &GitHubSource{client: client}
}

// Name 实现 Source
func (s *GitHubSource) Name() string { return SourceGitHub }

// Requires 实现 Source
func (s *GitHubSource) Requires() types.IntegrationKind { return types.IntegrationGitHub }

// Count 实现 Source
func (s *GitHubSource) Count(ctx context.Context, h credential.Handle, from, to time.Time) (int64, error) {
	token, err := h.Open(ctx)
	if err != nil {
		return 0, err
	}
	a, err := s.client.Activity(ctx, token.Reveal(), from, to)
	if err != nil {
		return 0, err
	}
	return a.Total(), nil
}

package onboarding

import (
	"context"

	"github.com/BaSui01/dailycrew/integrations/github"
	"github.com/BaSui01/dailycrew/integrations/youtrack"
	"github.com/BaSui01/dailycrew/types"
)

// GitHubChecker 校验 GitHub token
type GitHubChecker interface {
	CheckCredential(ctx context.Context, token string) (*github.User, error)
}

// GoogleChecker 校验 Google OAuth 凭据
type GoogleChecker interface {
	CheckCredential(ctx context.Context, payload string) error
}

// YouTrackChecker 校验 YouTrack 凭据
type YouTrackChecker interface {
	CheckCredential(ctx context.Context, payload string) (*youtrack.User, error)
}

// IntegrationValidators 用集成客户端的 CheckCredential 组装校验器，nil 客户端被忽略
func IntegrationValidators(gh GitHubChecker, g GoogleChecker, yt YouTrackChecker) Validators {
	vs := make(Validators, 3)
	if gh != nil {
		vs[types.IntegrationGitHub] = ValidatorFunc(func(ctx context.Context, payload string) error {
			_, err := gh.CheckCredential(ctx, payload)
			return err
		})
	}
	if g != nil {
		vs[types.IntegrationGoogle] = ValidatorFunc(g.CheckCredential)
	}
	if yt != nil {
		vs[types.IntegrationYouTrack] = ValidatorFunc(func(ctx context.Context, payload string) error {
			_, err := yt.CheckCredential(ctx, payload)
			return err
		})
	}
	return vs
}

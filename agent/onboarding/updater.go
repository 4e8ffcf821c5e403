package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/agent/users"
	"github.com/BaSui01/dailycrew/integrations/github"
	"github.com/BaSui01/dailycrew/integrations/google"
	"github.com/BaSui01/dailycrew/integrations/youtrack"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

// ErrMalformedCredential 输入不具备该集成凭据的形状
var ErrMalformedCredential = errors.New("malformed credential")

const updateUsage = "Use `update <github|google|youtrack> <credentials>` to connect or change an integration."

// ParseCommand 解析 "update <kind> <credentials>"。ok 为 false 表示不是 update 命令。
func ParseCommand(text string) (kind types.IntegrationKind, payload string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "update") {
		return "", "", false
	}
	kind, known := types.ParseIntegrationKind(fields[1])
	if !known {
		return "", "", false
	}
	return kind, strings.Join(fields[2:], " "), true
}

// DetectCredential 识别引导完成后直接发来的凭据
func DetectCredential(text string) (types.IntegrationKind, bool) {
	t := strings.TrimSpace(text)
	switch {
	case github.LooksLikeToken(t):
		return types.IntegrationGitHub, true
	case google.LooksLikeCredential(t):
		return types.IntegrationGoogle, true
	case youtrack.LooksLikeCredential(t):
		return types.IntegrationYouTrack, true
	}
	return "", false
}

// ContainsCredential 文本中任意位置出现凭据形状的内容（整条凭据、或夹在句子里的令牌）
func ContainsCredential(text string) bool {
	if _, ok := DetectCredential(text); ok {
		return true
	}
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, "\"'`.,;:()<>[]{}")
		if github.LooksLikeToken(f) || strings.HasPrefix(f, "perm:") || strings.HasPrefix(f, "1//") {
			return true
		}
	}
	return false
}

// UpdateResult 更新集成的结果
type UpdateResult struct {
	Kind       types.IntegrationKind
	Reply      string
	Configured bool
	// ValidationErr 非空表示凭据未被接受
	ValidationErr error
}

// =============================================================================
// 🔑 Updater
// =============================================================================

// Updater 引导完成后显式更新集成凭据
type Updater struct {
	creds      credential.Store
	validators Validators
	cfg        Config
	logger     *zap.Logger
}

// NewUpdater 创建更新器
func NewUpdater(creds credential.Store, validators Validators, cfg Config, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		creds:      creds,
		validators: validators,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "integration_updater")),
	}
}

// Update 校验并保存凭据，成功时把集成标记为已配置。
// 返回的 error 仅表示凭据存储失败。
func (up *Updater) Update(ctx context.Context, u *users.User, kind types.IntegrationKind, text string) (UpdateResult, error) {
	res := UpdateResult{Kind: kind}
	payload := strings.TrimSpace(text)

	step, ok := StepFor(kind)
	if !ok {
		res.ValidationErr = fmt.Errorf("%w: unknown integration %q", ErrMalformedCredential, kind)
		res.Reply = updateUsage
		return res, nil
	}
	if payload == "" || !transitions[step].Shape(payload) {
		res.ValidationErr = fmt.Errorf("%w for %s", ErrMalformedCredential, kind)
		res.Reply = fmt.Sprintf("That doesn't look like a %s credential.\n\n%s", kind.DisplayName(), transitions[step].Prompt)
		return res, nil
	}

	if err := checkCredential(ctx, up.cfg, up.validators, kind, payload); err != nil {
		res.ValidationErr = err
		if errors.Is(err, ErrInvalidCredential) {
			res.Reply = fmt.Sprintf("That doesn't appear to be a valid %s credential. Nothing was changed.", kind.DisplayName())
		} else {
			res.Reply = fmt.Sprintf("I couldn't reach %s to verify that right now. Nothing was changed; please try again shortly.", kind.DisplayName())
		}
		up.logger.Info("integration update rejected",
			zap.String("user_id", u.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return res, nil
	}

	if err := up.creds.Put(ctx, u.ID, kind, credential.Payload(payload)); err != nil {
		return res, fmt.Errorf("store %s credential: %w", kind, err)
	}
	u.SetIntegration(kind, types.IntegrationConfigured)
	res.Configured = true
	res.Reply = fmt.Sprintf("✅ %s updated. I'll use the new credentials from now on.", kind.DisplayName())
	up.logger.Info("integration updated", zap.String("user_id", u.ID), zap.String("kind", string(kind)))
	return res, nil
}

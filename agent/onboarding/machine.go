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

// ErrInvalidCredential 集成拒绝了用户提供的凭据
var ErrInvalidCredential = errors.New("invalid credential")

// InputKind 引导输入类型
type InputKind string

const (
	InputAck        InputKind = "ack"
	InputSkip       InputKind = "skip"
	InputCredential InputKind = "credential"
	InputFreeText   InputKind = "free_text"
)

var skipWords = map[string]bool{"skip": true, "later": true, "no": true, "not now": true}

var ackWords = map[string]bool{
	"continue": true, "ok": true, "okay": true, "yes": true, "start": true,
	"ready": true, "go": true, "hi": true, "hello": true, "hey": true,
}

// state 转换表中的一项
type state struct {
	Integration types.IntegrationKind
	Next        types.OnboardingStep
	Prompt      string
	// Shape 判断输入是否具有该集成凭据的形状
	Shape func(text string) bool
}

var transitions = map[types.OnboardingStep]state{
	types.StepWelcome: {
		Next:   types.StepGitHubSetup,
		Prompt: welcomeMessage,
	},
	types.StepGitHubSetup: {
		Integration: types.IntegrationGitHub,
		Next:        types.StepGoogleSetup,
		Prompt:      githubPrompt,
		Shape:       github.LooksLikeToken,
	},
	types.StepGoogleSetup: {
		Integration: types.IntegrationGoogle,
		Next:        types.StepYouTrackSetup,
		Prompt:      googlePrompt,
		Shape: func(text string) bool {
			_, err := google.ParseCredential(text)
			return err == nil
		},
	},
	types.StepYouTrackSetup: {
		Integration: types.IntegrationYouTrack,
		Next:        types.StepComplete,
		Prompt:      youtrackPrompt,
		Shape: func(text string) bool {
			_, err := youtrack.ParseCredential(text)
			return err == nil
		},
	},
}

// Prompt 返回步骤的提示语，complete 返回完成语
func Prompt(step types.OnboardingStep) string {
	if step == types.StepComplete {
		return completeMessage
	}
	if st, ok := transitions[step]; ok {
		return st.Prompt
	}
	return welcomeMessage
}

// StepFor 返回配置某集成的引导步骤
func StepFor(kind types.IntegrationKind) (types.OnboardingStep, bool) {
	for step, st := range transitions {
		if st.Integration == kind && kind != "" {
			return step, true
		}
	}
	return "", false
}

// Parse 将输入归类
func Parse(step types.OnboardingStep, text string) InputKind {
	norm := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!"))
	if skipWords[norm] {
		return InputSkip
	}
	st, ok := transitions[step]
	if ok && st.Shape != nil && st.Shape(strings.TrimSpace(text)) {
		return InputCredential
	}
	if ackWords[norm] {
		return InputAck
	}
	return InputFreeText
}

// Validator 调用集成的轻量凭据检查
type Validator interface {
	Validate(ctx context.Context, payload string) error
}

// ValidatorFunc 适配函数为 Validator
type ValidatorFunc func(ctx context.Context, payload string) error

// Validate implements Validator.
func (f ValidatorFunc) Validate(ctx context.Context, payload string) error { return f(ctx, payload) }

// Validators 按集成类型索引的校验器
type Validators map[types.IntegrationKind]Validator

// Config 状态机配置
type Config struct {
	RepromptThreshold   int
	ValidateCredentials bool
}

// Result 一次 Step 的结果
type Result struct {
	Reply    string
	From     types.OnboardingStep
	To       types.OnboardingStep
	Input    InputKind
	Advanced bool
	// NoOp 重放已经通过的步骤
	NoOp bool
	// Stuck 无效输入达到阈值后自动跳过
	Stuck bool
	// Configured 本次写入了凭据的集成
	Configured types.IntegrationKind
	Completed  bool
	// ValidationErr 凭据校验失败的原因，已反映在回复里
	ValidationErr error
}

// =============================================================================
// 🧭 Machine
// =============================================================================

// Machine 引导状态机
type Machine struct {
	creds      credential.Store
	validators Validators
	cfg        Config
	logger     *zap.Logger
}

// NewMachine 创建状态机
func NewMachine(creds credential.Store, validators Validators, cfg Config, logger *zap.Logger) *Machine {
	if cfg.RepromptThreshold <= 0 {
		cfg.RepromptThreshold = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		creds:      creds,
		validators: validators,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "onboarding")),
	}
}

// Step 处理一条引导期间的用户输入，原地修改 u，由调用方保存。
// answeringStep 非空且早于当前步骤时视为重放，不改变状态。
func (m *Machine) Step(ctx context.Context, u *users.User, text string, answeringStep types.OnboardingStep) (Result, error) {
	step := u.OnboardingStep
	res := Result{From: step, To: step}

	if u.OnboardingComplete() || step == types.StepComplete {
		res.NoOp = true
		res.Reply = "Your setup is already complete. Use `update <github|google|youtrack> <credentials>` to change an integration."
		return res, nil
	}
	if answeringStep != "" && answeringStep.Before(step) {
		res.NoOp = true
		res.Reply = Prompt(step)
		m.logger.Debug("onboarding replay ignored",
			zap.String("user_id", u.ID),
			zap.String("answering", string(answeringStep)),
			zap.String("step", string(step)),
		)
		return res, nil
	}

	st, ok := transitions[step]
	if !ok {
		m.logger.Warn("unknown onboarding step, restarting", zap.String("user_id", u.ID), zap.String("step", string(step)))
		u.OnboardingStep = types.StepWelcome
		u.RepromptCount = 0
		res.To = types.StepWelcome
		res.Reply = welcomeMessage
		return res, nil
	}
	if u.OnboardingStatus == types.OnboardingNotStarted {
		u.OnboardingStatus = types.OnboardingInProgress
	}

	res.Input = Parse(step, text)

	if step == types.StepWelcome {
		m.advance(u, &res, st)
		res.Reply = welcomeMessage + "\n\n" + Prompt(res.To)
		return res, nil
	}

	switch res.Input {
	case InputSkip:
		u.SetIntegration(st.Integration, types.IntegrationNotConfigured)
		m.advance(u, &res, st)
		res.Reply = fmt.Sprintf("No problem, %s is skipped. You can connect it later with `update %s <credentials>`.\n\n%s",
			st.Integration.DisplayName(), st.Integration, Prompt(res.To))
		return res, nil

	case InputCredential:
		payload := strings.TrimSpace(text)
		if err := m.validate(ctx, st.Integration, payload); err != nil {
			res.ValidationErr = err
			if !errors.Is(err, ErrInvalidCredential) {
				res.Reply = fmt.Sprintf("I couldn't reach %s to verify that right now. Please send it again in a moment, or type 'skip'.",
					st.Integration.DisplayName())
				return res, nil
			}
			return m.reprompt(u, res, st, fmt.Sprintf("That doesn't appear to be a valid %s credential.", st.Integration.DisplayName())), nil
		}
		if err := m.creds.Put(ctx, u.ID, st.Integration, credential.Payload(payload)); err != nil {
			return res, fmt.Errorf("store %s credential: %w", st.Integration, err)
		}
		u.SetIntegration(st.Integration, types.IntegrationConfigured)
		res.Configured = st.Integration
		m.advance(u, &res, st)
		res.Reply = fmt.Sprintf("✅ %s connected.\n\n%s", st.Integration.DisplayName(), Prompt(res.To))
		return res, nil

	default:
		return m.reprompt(u, res, st, "I didn't recognise that."), nil
	}
}

func (m *Machine) reprompt(u *users.User, res Result, st state, hint string) Result {
	u.RepromptCount++
	if u.RepromptCount < m.cfg.RepromptThreshold {
		res.Reply = hint + "\n\n" + st.Prompt
		return res
	}

	u.SetIntegration(st.Integration, types.IntegrationSkipped)
	m.advance(u, &res, st)
	res.Stuck = true
	res.Reply = fmt.Sprintf("Let's skip %s for now. You can connect it any time with `update %s <credentials>`.\n\n%s",
		st.Integration.DisplayName(), st.Integration, Prompt(res.To))
	m.logger.Warn("onboarding step auto-skipped",
		zap.String("user_id", u.ID),
		zap.String("step", string(res.From)),
		zap.String("code", string(types.ErrOnboardingStuck)),
		zap.Int("threshold", m.cfg.RepromptThreshold),
	)
	return res
}

func (m *Machine) advance(u *users.User, res *Result, st state) {
	u.OnboardingStep = st.Next
	u.RepromptCount = 0
	res.To = st.Next
	res.Advanced = true
	if st.Next == types.StepComplete {
		u.OnboardingStatus = types.OnboardingComplete
		res.Completed = true
	}
}

func (m *Machine) validate(ctx context.Context, kind types.IntegrationKind, payload string) error {
	return checkCredential(ctx, m.cfg, m.validators, kind, payload)
}

func checkCredential(ctx context.Context, cfg Config, validators Validators, kind types.IntegrationKind, payload string) error {
	if !cfg.ValidateCredentials {
		return nil
	}
	v, ok := validators[kind]
	if !ok || v == nil {
		return nil
	}
	return classify(v.Validate(ctx, payload))
}

// classify maps integration errors to ErrInvalidCredential when the
// integration rejected the credential itself.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidCredential) ||
		types.IsErrorCode(err, types.ErrCredentialInvalid) ||
		errors.Is(err, google.ErrMalformedCredential) ||
		errors.Is(err, youtrack.ErrMalformedCredential) {
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return err
}

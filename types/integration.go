package types

import "strings"

// IntegrationKind 第三方集成类型
type IntegrationKind string

const (
	IntegrationGitHub   IntegrationKind = "github"
	IntegrationGoogle   IntegrationKind = "google"
	IntegrationYouTrack IntegrationKind = "youtrack"
)

// AllIntegrations returns every integration in onboarding order.
func AllIntegrations() []IntegrationKind {
	return []IntegrationKind{IntegrationGitHub, IntegrationGoogle, IntegrationYouTrack}
}

// ParseIntegrationKind 解析集成类型（大小写不敏感）
func ParseIntegrationKind(s string) (IntegrationKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "github", "gh":
		return IntegrationGitHub, true
	case "google", "gmail", "calendar":
		return IntegrationGoogle, true
	case "youtrack", "yt":
		return IntegrationYouTrack, true
	}
	return "", false
}

// DisplayName 返回集成的展示名称
func (k IntegrationKind) DisplayName() string {
	switch k {
	case IntegrationGitHub:
		return "GitHub"
	case IntegrationGoogle:
		return "Google (Calendar & Gmail)"
	case IntegrationYouTrack:
		return "YouTrack"
	}
	return string(k)
}

// IntegrationStatus 集成配置状态
type IntegrationStatus string

const (
	IntegrationNotConfigured IntegrationStatus = "not_configured"
	IntegrationConfigured    IntegrationStatus = "configured"
	// IntegrationSkipped marks an integration auto-skipped after repeated re-prompts.
	IntegrationSkipped IntegrationStatus = "skipped"
)

// OnboardingStatus 引导整体状态
type OnboardingStatus string

const (
	OnboardingNotStarted OnboardingStatus = "not_started"
	OnboardingInProgress OnboardingStatus = "in_progress"
	OnboardingComplete   OnboardingStatus = "complete"
)

// OnboardingStep 引导当前步骤
type OnboardingStep string

const (
	StepWelcome       OnboardingStep = "welcome"
	StepGitHubSetup   OnboardingStep = "github_setup"
	StepGoogleSetup   OnboardingStep = "google_setup"
	StepYouTrackSetup OnboardingStep = "youtrack_setup"
	StepComplete      OnboardingStep = "complete"
)

var stepOrder = map[OnboardingStep]int{
	StepWelcome:       0,
	StepGitHubSetup:   1,
	StepGoogleSetup:   2,
	StepYouTrackSetup: 3,
	StepComplete:      4,
}

// Ordinal returns the forward position of the step, or -1 when unknown.
func (s OnboardingStep) Ordinal() int {
	if o, ok := stepOrder[s]; ok {
		return o
	}
	return -1
}

// Before reports whether s comes strictly before other in the forward order.
func (s OnboardingStep) Before(other OnboardingStep) bool {
	return s.Ordinal() >= 0 && other.Ordinal() >= 0 && s.Ordinal() < other.Ordinal()
}

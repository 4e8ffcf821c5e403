package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntegrationKind(t *testing.T) {
	tests := []struct {
		in   string
		want IntegrationKind
		ok   bool
	}{
		{"github", IntegrationGitHub, true},
		{" GH ", IntegrationGitHub, true},
		{"Calendar", IntegrationGoogle, true},
		{"youtrack", IntegrationYouTrack, true},
		{"jira", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseIntegrationKind(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOnboardingStep_Order(t *testing.T) {
	assert.True(t, StepWelcome.Before(StepGitHubSetup))
	assert.True(t, StepGoogleSetup.Before(StepComplete))
	assert.False(t, StepComplete.Before(StepWelcome))
	assert.False(t, OnboardingStep("bogus").Before(StepComplete))
	assert.Equal(t, -1, OnboardingStep("bogus").Ordinal())
}

func TestEventKind(t *testing.T) {
	assert.True(t, EventKindHourlyCheckin.IsScheduled())
	assert.False(t, EventKindMessage.IsScheduled())
	assert.True(t, EventKindWebhook.Valid())
	assert.False(t, EventKind("nope").Valid())
}

func TestCategory_Priority(t *testing.T) {
	order := PriorityOrder()
	for i, c := range order {
		assert.Equal(t, i, c.Priority())
		assert.True(t, c.Valid())
	}
	assert.False(t, Category("cooking").Valid())
	assert.Less(t, CategoryPlanning.Priority(), CategoryMotivation.Priority())
}

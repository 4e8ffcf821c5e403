package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotZero(t, cfg.Server)
	assert.NotZero(t, cfg.Redis)
	assert.NotZero(t, cfg.Database)
	assert.NotZero(t, cfg.Log)
	assert.NotZero(t, cfg.Telemetry)
	assert.NotZero(t, cfg.Dispatch)
	assert.NotZero(t, cfg.Onboarding)
	assert.NotZero(t, cfg.Session)
	assert.NotZero(t, cfg.Scheduler)
	assert.NotZero(t, cfg.Broker)
	assert.NotZero(t, cfg.Interaction)
	assert.NotZero(t, cfg.Integrations)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.AllowQueryAPIKey)
	assert.False(t, cfg.JWT.Enabled())
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, "dailycrew:", cfg.KeyPrefix)
	assert.Equal(t, 10, cfg.PoolSize)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "dailycrew", cfg.Name)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultDispatchConfig(t *testing.T) {
	cfg := DefaultDispatchConfig()
	assert.Equal(t, 3, cfg.FanOutLimit)
	assert.Equal(t, 20*time.Second, cfg.SpecialistTimeout)
	assert.Equal(t, 3*time.Second, cfg.CredentialTimeout)
	assert.Equal(t, 2000, cfg.ContextBudget)
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "chars", cfg.BudgetUnit)
	assert.Equal(t, 40, cfg.MaxTurns)
	assert.Equal(t, 20, cfg.MaxSubTasks)
}

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Tick)
	assert.Equal(t, 9, cfg.WelcomeHour)
	assert.Equal(t, 10, cfg.CheckinStartHour)
	assert.Equal(t, 17, cfg.CheckinEndHour)
	assert.True(t, cfg.WeekdaysOnly)
}

func TestDefaultBrokerConfig(t *testing.T) {
	cfg := DefaultBrokerConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dailycrew", cfg.Exchange)
	assert.Equal(t, 10, cfg.Prefetch)
}

func TestDefaultIntegrationsConfig(t *testing.T) {
	cfg := DefaultIntegrationsConfig()
	assert.Equal(t, "https://api.github.com", cfg.GitHubBaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
}

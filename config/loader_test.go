// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 3, cfg.Dispatch.FanOutLimit)
	assert.Equal(t, 3, cfg.Onboarding.RepromptThreshold)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, []int{11, 13, 15, 17}, cfg.Scheduler.ActivityHours)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "dailycrew", cfg.Telemetry.ServiceName)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

dispatch:
  fan_out_limit: 5
  specialist_timeout: 5s

scheduler:
  default_timezone: "Europe/Berlin"
  activity_hours: [12, 16]

redis:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, 5, cfg.Dispatch.FanOutLimit)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.SpecialistTimeout)
	// 未在 YAML 中出现的字段保留默认值
	assert.Equal(t, 3*time.Second, cfg.Dispatch.CredentialTimeout)

	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.DefaultTimezone)
	assert.Equal(t, []int{12, 16}, cfg.Scheduler.ActivityHours)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("DAILYCREW_SERVER_HTTP_PORT", "7777")
	t.Setenv("DAILYCREW_DISPATCH_SPECIALIST_TIMEOUT", "2s")
	t.Setenv("DAILYCREW_ONBOARDING_REPROMPT_THRESHOLD", "5")
	t.Setenv("DAILYCREW_SCHEDULER_ACTIVITY_HOURS", "10, 14")
	t.Setenv("DAILYCREW_SCHEDULER_WEEKDAYS_ONLY", "false")
	t.Setenv("DAILYCREW_INTERACTION_SINKS", "database,memory")
	t.Setenv("DAILYCREW_SERVER_JWT_SECRET", "s3cret")
	t.Setenv("DAILYCREW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.SpecialistTimeout)
	assert.Equal(t, 5, cfg.Onboarding.RepromptThreshold)
	assert.Equal(t, []int{10, 14}, cfg.Scheduler.ActivityHours)
	assert.False(t, cfg.Scheduler.WeekdaysOnly)
	assert.Equal(t, []string{"database", "memory"}, cfg.Interaction.Sinks)
	assert.True(t, cfg.Server.JWT.Enabled())
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_InvalidIntSliceEnv(t *testing.T) {
	t.Setenv("DAILYCREW_SCHEDULER_ACTIVITY_HOURS", "11,noon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAILYCREW_SCHEDULER_ACTIVITY_HOURS")
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
session:
  store: "database"
  max_turns: 12
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("DAILYCREW_SERVER_HTTP_PORT", "9999")
	t.Setenv("DAILYCREW_SESSION_STORE", "memory")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, 12, cfg.Session.MaxTurns)
}

func TestLoader_EnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	content := "DAILYCREW_BROKER_URL=amqp://env-file/\nDAILYCREW_DISPATCH_FAN_OUT_LIMIT=7\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0644))

	// 已存在的环境变量优先于 .env
	t.Setenv("DAILYCREW_DISPATCH_FAN_OUT_LIMIT", "2")
	// godotenv 会写入进程环境，测试结束后清理
	t.Setenv("DAILYCREW_BROKER_URL", "")
	os.Unsetenv("DAILYCREW_BROKER_URL")

	cfg, err := NewLoader().
		WithEnvFile(envPath, filepath.Join(tmpDir, "missing.env")).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "amqp://env-file/", cfg.Broker.URL)
	assert.Equal(t, 2, cfg.Dispatch.FanOutLimit)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	t.Setenv("DAILYCREW_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid HTTP port",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: true,
		},
		{
			name:    "zero fan out",
			modify:  func(c *Config) { c.Dispatch.FanOutLimit = 0 },
			wantErr: true,
		},
		{
			name:    "zero reprompt threshold",
			modify:  func(c *Config) { c.Onboarding.RepromptThreshold = 0 },
			wantErr: true,
		},
		{
			name:    "unknown session store",
			modify:  func(c *Config) { c.Session.Store = "etcd" },
			wantErr: true,
		},
		{
			name:    "redis session store without redis",
			modify:  func(c *Config) { c.Session.Store = "redis" },
			wantErr: true,
		},
		{
			name: "redis session store with redis",
			modify: func(c *Config) {
				c.Session.Store = "redis"
				c.Redis.Enabled = true
			},
			wantErr: false,
		},
		{
			name:    "activity hour out of range",
			modify:  func(c *Config) { c.Scheduler.ActivityHours = []int{11, 24} },
			wantErr: true,
		},
		{
			name: "checkin window inverted",
			modify: func(c *Config) {
				c.Scheduler.CheckinStartHour = 18
				c.Scheduler.CheckinEndHour = 10
			},
			wantErr: true,
		},
		{
			name:    "unknown timezone",
			modify:  func(c *Config) { c.Scheduler.DefaultTimezone = "Mars/Olympus" },
			wantErr: true,
		},
		{
			name:    "mongo sink without uri",
			modify:  func(c *Config) { c.Interaction.Sinks = []string{"mongo"} },
			wantErr: true,
		},
		{
			name:    "broker sink without broker",
			modify:  func(c *Config) { c.Interaction.Sinks = []string{"broker"} },
			wantErr: true,
		},
		{
			name:    "unknown budget unit",
			modify:  func(c *Config) { c.Session.BudgetUnit = "words" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver:   "mysql",
				Host:     "localhost",
				Port:     3306,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8080\n"), 0644))

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: [yaml"), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("DAILYCREW_TELEMETRY_SERVICE_NAME", "env-only")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Telemetry.ServiceName)
}

// =============================================================================
// 📦 dailycrew 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvFile(".env").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（.env 不覆盖已存在的环境变量）
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 dailycrew 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Dispatch 协调器调度配置
	Dispatch DispatchConfig `yaml:"dispatch" env:"DISPATCH"`

	// Onboarding 引导流程配置
	Onboarding OnboardingConfig `yaml:"onboarding" env:"ONBOARDING"`

	// Session 会话上下文配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Scheduler 定时触发配置
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`

	// Broker 消息代理配置
	Broker BrokerConfig `yaml:"broker" env:"BROKER"`

	// Interaction 交互日志配置
	Interaction InteractionConfig `yaml:"interaction" env:"INTERACTION"`

	// Integrations 第三方集成配置
	Integrations IntegrationsConfig `yaml:"integrations" env:"INTEGRATIONS"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// API 密钥列表，为空时不启用 API Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 query 参数传递 API Key（websocket 客户端需要）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// CORS 允许的源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每个 IP 的请求速率
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 速率突发
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// TLS 证书
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLS 私钥
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// JWT 认证
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 认证配置，Secret 与 PublicKey 都为空时不启用
type JWTConfig struct {
	// HMAC 密钥（HS256）
	Secret string `yaml:"secret" env:"SECRET"`
	// RSA 公钥 PEM（RS256）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 签发者
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 受众
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了 JWT 校验密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用，关闭时使用内存实现
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 默认 TTL
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 下为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DispatchConfig 协调器调度配置
type DispatchConfig struct {
	// 同一阶段内并发执行的专家数上限
	FanOutLimit int `yaml:"fan_out_limit" env:"FAN_OUT_LIMIT"`
	// 单个专家调用超时
	SpecialistTimeout time.Duration `yaml:"specialist_timeout" env:"SPECIALIST_TIMEOUT"`
	// 凭证查询超时
	CredentialTimeout time.Duration `yaml:"credential_timeout" env:"CREDENTIAL_TIMEOUT"`
	// 传递给下游专家的上游上下文预算
	ContextBudget int `yaml:"context_budget" env:"CONTEXT_BUDGET"`
}

// OnboardingConfig 引导流程配置
type OnboardingConfig struct {
	// 连续无效输入达到该次数后自动跳过当前步骤
	RepromptThreshold int `yaml:"reprompt_threshold" env:"REPROMPT_THRESHOLD"`
	// 是否在保存前调用集成接口校验凭证
	ValidateCredentials bool `yaml:"validate_credentials" env:"VALIDATE_CREDENTIALS"`
}

// SessionConfig 会话上下文配置
type SessionConfig struct {
	// 存储类型: memory, redis, database
	Store string `yaml:"store" env:"STORE"`
	// 保留的最大轮次
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 保留的最大子任务数
	MaxSubTasks int `yaml:"max_sub_tasks" env:"MAX_SUB_TASKS"`
	// 不活跃过期时间（redis 存储）
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 上下文预算单位: chars, tokens
	BudgetUnit string `yaml:"budget_unit" env:"BUDGET_UNIT"`
	// tokens 模式下使用的编码
	TokenEncoding string `yaml:"token_encoding" env:"TOKEN_ENCODING"`
}

// SchedulerConfig 定时触发配置
type SchedulerConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 时钟间隔
	Tick time.Duration `yaml:"tick" env:"TICK"`
	// 用户未设置时区时的默认时区
	DefaultTimezone string `yaml:"default_timezone" env:"DEFAULT_TIMEZONE"`
	// 每日欢迎时刻（小时）
	WelcomeHour int `yaml:"welcome_hour" env:"WELCOME_HOUR"`
	// 每小时签到开始（含）
	CheckinStartHour int `yaml:"checkin_start_hour" env:"CHECKIN_START_HOUR"`
	// 每小时签到结束（含）
	CheckinEndHour int `yaml:"checkin_end_hour" env:"CHECKIN_END_HOUR"`
	// 活跃度检查的小时，在每个小时的 :30 触发
	ActivityHours []int `yaml:"activity_hours" env:"ACTIVITY_HOURS"`
	// 仅工作日触发
	WeekdaysOnly bool `yaml:"weekdays_only" env:"WEEKDAYS_ONLY"`
	// 协程池大小
	Workers int `yaml:"workers" env:"WORKERS"`
	// 跨实例去重（需要 redis）
	Dedupe bool `yaml:"dedupe" env:"DEDUPE"`
}

// BrokerConfig RabbitMQ 配置
type BrokerConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// AMQP URL
	URL string `yaml:"url" env:"URL"`
	// Topic exchange 名称
	Exchange string `yaml:"exchange" env:"EXCHANGE"`
	// 入站事件队列
	Queue string `yaml:"queue" env:"QUEUE"`
	// 消费者并发数
	Workers int `yaml:"workers" env:"WORKERS"`
	// QoS 预取数
	Prefetch int `yaml:"prefetch" env:"PREFETCH"`
	// 连接重试次数
	RetryAttempts int `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	// 连接重试初始间隔
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// InteractionConfig 交互日志配置
type InteractionConfig struct {
	// 日志落地: database, mongo, broker, memory（可逗号分隔多个）
	Sinks []string `yaml:"sinks" env:"SINKS"`
	// MongoDB 连接串
	MongoURI string `yaml:"mongo_uri" env:"MONGO_URI"`
	// MongoDB 数据库
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
	// MongoDB 集合
	MongoCollection string `yaml:"mongo_collection" env:"MONGO_COLLECTION"`
}

// IntegrationsConfig 第三方集成配置
type IntegrationsConfig struct {
	// GitHub API 地址
	GitHubBaseURL string `yaml:"github_base_url" env:"GITHUB_BASE_URL"`
	// Google OAuth token 地址
	GoogleTokenURL string `yaml:"google_token_url" env:"GOOGLE_TOKEN_URL"`
	// Google Calendar API 地址
	GoogleCalendarURL string `yaml:"google_calendar_url" env:"GOOGLE_CALENDAR_URL"`
	// Gmail API 地址
	GoogleGmailURL string `yaml:"google_gmail_url" env:"GOOGLE_GMAIL_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数（含首次共 MaxRetries+1 次）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envFiles   []string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DAILYCREW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvFile 添加 .env 文件，已存在的环境变量不会被覆盖
func (l *Loader) WithEnvFile(paths ...string) *Loader {
	for _, p := range paths {
		if p != "" {
			l.envFiles = append(l.envFiles, p)
		}
	}
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadEnvFiles 加载 .env 文件，缺失的文件被忽略
func (l *Loader) loadEnvFiles() error {
	for _, p := range l.envFiles {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		parts := splitList(value)
		switch field.Type().Elem().Kind() {
		case reflect.String:
			field.Set(reflect.ValueOf(parts))
		case reflect.Int:
			ints := make([]int, 0, len(parts))
			for _, p := range parts {
				n, err := strconv.Atoi(p)
				if err != nil {
					return err
				}
				ints = append(ints, n)
			}
			field.Set(reflect.ValueOf(ints))
		}
	}

	return nil
}

// splitList 拆分逗号分隔的列表，忽略空项
func splitList(value string) []string {
	raw := strings.Split(value, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Dispatch.FanOutLimit <= 0 {
		errs = append(errs, "dispatch.fan_out_limit must be positive")
	}
	if c.Dispatch.SpecialistTimeout <= 0 {
		errs = append(errs, "dispatch.specialist_timeout must be positive")
	}
	if c.Dispatch.CredentialTimeout <= 0 {
		errs = append(errs, "dispatch.credential_timeout must be positive")
	}
	if c.Dispatch.ContextBudget <= 0 {
		errs = append(errs, "dispatch.context_budget must be positive")
	}

	if c.Onboarding.RepromptThreshold <= 0 {
		errs = append(errs, "onboarding.reprompt_threshold must be positive")
	}

	switch c.Session.Store {
	case "memory", "redis", "database":
	default:
		errs = append(errs, fmt.Sprintf("unknown session.store %q", c.Session.Store))
	}
	switch c.Session.BudgetUnit {
	case "chars", "tokens":
	default:
		errs = append(errs, fmt.Sprintf("unknown session.budget_unit %q", c.Session.BudgetUnit))
	}
	if c.Session.MaxTurns <= 0 || c.Session.MaxSubTasks <= 0 {
		errs = append(errs, "session.max_turns and session.max_sub_tasks must be positive")
	}
	if c.Session.Store == "redis" && !c.Redis.Enabled {
		errs = append(errs, "session.store=redis requires redis.enabled")
	}

	if c.Scheduler.Tick <= 0 {
		errs = append(errs, "scheduler.tick must be positive")
	}
	hours := append([]int{c.Scheduler.WelcomeHour, c.Scheduler.CheckinStartHour, c.Scheduler.CheckinEndHour}, c.Scheduler.ActivityHours...)
	for _, h := range hours {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Sprintf("scheduler hour %d out of range 0-23", h))
			break
		}
	}
	if c.Scheduler.CheckinStartHour > c.Scheduler.CheckinEndHour {
		errs = append(errs, "scheduler.checkin_start_hour must not exceed checkin_end_hour")
	}
	if _, err := time.LoadLocation(c.Scheduler.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid scheduler.default_timezone %q", c.Scheduler.DefaultTimezone))
	}
	if c.Scheduler.Dedupe && !c.Redis.Enabled {
		errs = append(errs, "scheduler.dedupe requires redis.enabled")
	}

	for _, s := range c.Interaction.Sinks {
		switch s {
		case "database", "memory":
		case "mongo":
			if c.Interaction.MongoURI == "" {
				errs = append(errs, "interaction sink mongo requires mongo_uri")
			}
		case "broker":
			if !c.Broker.Enabled {
				errs = append(errs, "interaction sink broker requires broker.enabled")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown interaction sink %q", s))
		}
	}

	if c.Broker.Enabled && c.Broker.URL == "" {
		errs = append(errs, "broker.url is required when the broker is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

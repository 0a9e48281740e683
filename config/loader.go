// =============================================================================
// 📦 Oracle 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ORACLE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Oracle 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Debate    DebateConfig    `yaml:"debate" env:"DEBATE"`
	Retry     RetryConfig     `yaml:"retry" env:"RETRY"`
	Validator ValidatorConfig `yaml:"validator" env:"VALIDATOR"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Archive   ArchiveConfig   `yaml:"archive" env:"ARCHIVE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时, 同步辩论接口需要足够长
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 同时运行的辩论会话上限
	MaxConcurrentDebates int `yaml:"max_concurrent_debates" env:"MAX_CONCURRENT_DEBATES"`
	// 会话结果在内存中保留的时间
	SessionRetention time.Duration `yaml:"session_retention" env:"SESSION_RETENTION"`
	// 每 IP 限流
	RateLimitRPS   float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CORSOrigins    []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DebateConfig 辩论引擎配置
type DebateConfig struct {
	MaxRounds            int `yaml:"max_rounds" env:"MAX_ROUNDS"`
	ConvergenceThreshold int `yaml:"convergence_threshold" env:"CONVERGENCE_THRESHOLD"`
	// 每轮乐观方最多生成次数 (含校验失败重写)
	ValidationAttempts int `yaml:"validation_attempts" env:"VALIDATION_ATTEMPTS"`
	// 共识合成策略: keyword, delegated
	Synthesizer string `yaml:"synthesizer" env:"SYNTHESIZER"`
	// 委托合成使用的 provider
	SynthesizerProvider string `yaml:"synthesizer_provider" env:"SYNTHESIZER_PROVIDER"`
	// 单个会话的总超时, 0 表示不限制
	SessionTimeout time.Duration `yaml:"session_timeout" env:"SESSION_TIMEOUT"`
}

// RetryConfig 传输层重试配置
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	Backoff     time.Duration `yaml:"backoff" env:"BACKOFF"`
}

// ValidatorConfig 事实校验器配置
type ValidatorConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 校验器绑定的 provider, 默认与乐观方相同
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 校验器调用失败时: fail_open 视为通过, fail_closed 视为拒绝
	FailurePolicy string  `yaml:"failure_policy" env:"FAILURE_POLICY"`
	Temperature   float32 `yaml:"temperature" env:"TEMPERATURE"`
}

// ProvidersConfig 两个角色绑定的 provider
type ProvidersConfig struct {
	Gemini   ProviderConfig `yaml:"gemini" env:"GEMINI"`
	DeepSeek ProviderConfig `yaml:"deepseek" env:"DEEPSEEK"`
}

// ProviderConfig 单个 provider 配置
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 两次调用之间的最小间隔, 0 表示不限速
	MinInterval time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"`
	Temperature float32       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// Provider 按名称返回 provider 配置.
func (p *ProvidersConfig) Provider(name string) (ProviderConfig, bool) {
	switch strings.ToLower(name) {
	case "gemini":
		return p.Gemini, true
	case "deepseek":
		return p.DeepSeek, true
	}
	return ProviderConfig{}, false
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite (纯 Go), sqlite3 (cgo)
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// ArchiveConfig 辩论结果归档配置
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 存储后端: sql, mongo
	Backend         string `yaml:"backend" env:"BACKEND"`
	MongoURI        string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase   string `yaml:"mongo_database" env:"MONGO_DATABASE"`
	MongoCollection string `yaml:"mongo_collection" env:"MONGO_COLLECTION"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// CacheConfig 校验判定缓存配置, 依赖 redis.enabled
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// AuthConfig API 认证配置
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled" env:"ENABLED"`
	APIKeys   []string `yaml:"api_keys" env:"API_KEYS"`
	JWTSecret string   `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string   `yaml:"jwt_issuer" env:"JWT_ISSUER"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ORACLE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
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
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
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

		if field.Kind() == reflect.Struct {
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
		// 特殊处理 time.Duration
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
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Load 从路径和 ORACLE_ 环境变量加载并校验配置
func Load(path string) (*Config, error) {
	return NewLoader().
		WithConfigPath(path).
		WithValidator((*Config).Validate).
		Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MaxConcurrentDebates < 1 {
		errs = append(errs, "server.max_concurrent_debates must be >= 1")
	}
	if c.Debate.MaxRounds < 1 {
		errs = append(errs, "debate.max_rounds must be >= 1")
	}
	if c.Debate.ConvergenceThreshold < 1 {
		errs = append(errs, "debate.convergence_threshold must be >= 1")
	}
	if c.Debate.ValidationAttempts < 1 {
		errs = append(errs, "debate.validation_attempts must be >= 1")
	}
	switch c.Debate.Synthesizer {
	case "keyword", "delegated":
	default:
		errs = append(errs, fmt.Sprintf("unknown debate.synthesizer %q", c.Debate.Synthesizer))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, "retry.backoff must not be negative")
	}
	switch c.Validator.FailurePolicy {
	case "fail_open", "fail_closed":
	default:
		errs = append(errs, fmt.Sprintf("unknown validator.failure_policy %q", c.Validator.FailurePolicy))
	}
	if c.Providers.Gemini.MinInterval < 0 || c.Providers.DeepSeek.MinInterval < 0 {
		errs = append(errs, "providers.*.min_interval must not be negative")
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case "sql", "mongo":
		default:
			errs = append(errs, fmt.Sprintf("unknown archive.backend %q", c.Archive.Backend))
		}
	}
	if c.Cache.Enabled && !c.Redis.Enabled {
		errs = append(errs, "cache.enabled requires redis.enabled")
	}

	if len(errs) > 0 {
		return types.NewConfigurationError(fmt.Sprintf("config validation errors: %s", strings.Join(errs, "; ")))
	}

	return nil
}

// RequireCredentials 检查两个角色的 API Key. 在构建引擎前调用.
func (c *Config) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Providers.Gemini.APIKey) == "" {
		missing = append(missing, "providers.gemini.api_key")
	}
	if strings.TrimSpace(c.Providers.DeepSeek.APIKey) == "" {
		missing = append(missing, "providers.deepseek.api_key")
	}
	if len(missing) > 0 {
		return types.NewConfigurationError("missing credentials: " + strings.Join(missing, ", "))
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
	case "sqlite", "sqlite3":
		return d.Name
	default:
		return ""
	}
}

package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Debate:    DefaultDebateConfig(),
		Retry:     DefaultRetryConfig(),
		Validator: DefaultValidatorConfig(),
		Providers: DefaultProvidersConfig(),
		Database:  DefaultDatabaseConfig(),
		Archive:   DefaultArchiveConfig(),
		Redis:     DefaultRedisConfig(),
		Cache:     DefaultCacheConfig(),
		Auth:      DefaultAuthConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:             8080,
		MetricsPort:          9091,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         30 * time.Minute,
		ShutdownTimeout:      15 * time.Second,
		MaxConcurrentDebates: 4,
		SessionRetention:     time.Hour,
		RateLimitRPS:         5,
		RateLimitBurst:       10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "counterfactual-oracle",
		SampleRate:   0.1,
	}
}

// DefaultDebateConfig 返回默认辩论配置
func DefaultDebateConfig() DebateConfig {
	return DebateConfig{
		MaxRounds:            10,
		ConvergenceThreshold: 2,
		ValidationAttempts:   3,
		Synthesizer:          "keyword",
		SynthesizerProvider:  "gemini",
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     5 * time.Second,
	}
}

// DefaultValidatorConfig 返回默认校验器配置
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		Enabled:       true,
		Provider:      "gemini",
		FailurePolicy: "fail_open",
		Temperature:   0.1,
	}
}

// DefaultProvidersConfig 返回默认 provider 配置
// Gemini 免费档约 5 RPM, 间隔 25s; DeepSeek 10s.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Gemini: ProviderConfig{
			BaseURL:     "https://generativelanguage.googleapis.com",
			Model:       "gemini-2.0-flash",
			Timeout:     60 * time.Second,
			MinInterval: 25 * time.Second,
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		DeepSeek: ProviderConfig{
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Timeout:     60 * time.Second,
			MinInterval: 10 * time.Second,
			Temperature: 0.7,
			MaxTokens:   2048,
		},
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "oracle",
		Password:        "",
		Name:            "oracle.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultArchiveConfig 返回默认归档配置
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:         false,
		Backend:         "sql",
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "oracle",
		MongoCollection: "debates",
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		TTL:       24 * time.Hour,
		KeyPrefix: "oracle:",
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:   false,
		JWTIssuer: "counterfactual-oracle",
	}
}

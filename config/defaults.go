// =============================================================================
// 📦 adregistry 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Crawler:    DefaultCrawlerConfig(),
		Capability: DefaultCapabilityConfig(),
		Members:    DefaultMembersConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "adregistry",
		Name:            "adregistry.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "adregistry:",
	}
}

// DefaultCrawlerConfig 返回默认爬虫配置
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		Interval:        6 * time.Hour,
		Concurrency:     5,
		ProbeTimeout:    10 * time.Second,
		FetchTimeout:    10 * time.Second,
		FetchRPS:        10,
		FetchBurst:      10,
		FetchRetries:    2,
		UserAgent:       "adregistry-crawler/1.0",
		DiscoveredTTL:   7 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
		CollectClaims:   true,
	}
}

// DefaultCapabilityConfig 返回默认能力发现配置
func DefaultCapabilityConfig() CapabilityConfig {
	return CapabilityConfig{
		CacheTTL:     15 * time.Minute,
		CacheBackend: "memory",
	}
}

// DefaultMembersConfig 返回默认成员目录配置
func DefaultMembersConfig() MembersConfig {
	return MembersConfig{
		File:           "members.yaml",
		ReloadInterval: 5 * time.Minute,
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
		Insecure:     true,
		ServiceName:  "adregistry",
		SampleRate:   0.1,
	}
}

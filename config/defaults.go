// =============================================================================
// 📦 TestFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Browser:     DefaultBrowserConfig(),
		Screenshots: DefaultScreenshotConfig(),
		Breakpoints: BreakpointConfig{},
		Devtool:     DefaultDevtoolConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Metrics:     DefaultMetricsConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultBrowserConfig 返回默认浏览器配置
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:        true,
		ViewportWidth:   1920,
		ViewportHeight:  1080,
		StartTimeout:    30 * time.Second,
		DefaultTimeout:  10 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		PollTick:        100 * time.Millisecond,
	}
}

// DefaultScreenshotConfig 默认只在失败时截图
func DefaultScreenshotConfig() ScreenshotConfig {
	return ScreenshotConfig{
		Enabled:      false,
		Path:         "screenshots",
		OnSuccess:    false,
		OnFailure:    true,
		MaxPerSecond: 2,
		Burst:        4,
	}
}

// DefaultDevtoolConfig 返回默认调试面板配置（不连接）
func DefaultDevtoolConfig() DevtoolConfig {
	return DevtoolConfig{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     2 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		PoolSize:     10,
		StreamPrefix: "testflow",
		StreamMaxLen: 10000,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "testflow",
		Name:            "testflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "testflow",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "testflow",
		SampleRate:   0.1,
	}
}

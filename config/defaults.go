package config

import (
	"time"

	"github.com/busylang/busyflow/persistence"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Process:   DefaultProcessConfig(),
		Runtime:   DefaultRuntimeConfig(),
		Audit:     persistence.DefaultStoreConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultProcessConfig returns default process execution settings.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		StepTimeout:         5 * time.Minute,
		AgentRetryAttempts:  3,
		AgentRateLimitRPS:   0,
		AgentRateLimitBurst: 1,
	}
}

// DefaultRuntimeConfig returns default execution-context settings.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		OperationTimeout: 30 * time.Second,
		MaxContextDepth:  0,
	}
}

// DefaultLogConfig returns default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "busyflow",
		SampleRate:   0.1,
	}
}

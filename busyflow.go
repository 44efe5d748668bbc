// Package busyflow provides a top-level convenience entry point for
// building and running business processes with minimal boilerplate.
//
// Usage:
//
//	import "github.com/busylang/busyflow"
//
//	p := busyflow.NewProcess("onboarding", busyflow.WithUser("u-1"))
//	result, err := p.ExecuteSteps(ctx)
//
// This is a thin wrapper around [process.New] and [runtime.NewContext];
// both produce identical results. Use this package when you prefer the
// shorter import path.
package busyflow

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/busylang/busyflow/config"
	"github.com/busylang/busyflow/internal/metrics"
	"github.com/busylang/busyflow/internal/telemetry"
	"github.com/busylang/busyflow/persistence"
	"github.com/busylang/busyflow/process"
	"github.com/busylang/busyflow/runtime"
)

// Option configures the process created by [NewProcess].
type Option = process.Option

// NewProcess creates a [process.Process] with minimal configuration.
func NewProcess(name string, opts ...Option) *process.Process {
	return process.New("", name, opts...)
}

// Re-export process options so callers never need to import process/.

// WithUser sets the acting user recorded in events and audit entries.
var WithUser = process.WithUser

// WithLogger sets a custom zap logger.
var WithLogger = process.WithLogger

// WithMetrics sets the metrics sink.
var WithMetrics = process.WithMetrics

// WithSteps seeds the process with an ordered step list.
var WithSteps = process.WithSteps

// NewContext creates a root [runtime.Context] in a fresh arena.
func NewContext(opts ...runtime.ContextOption) *runtime.Context {
	return runtime.NewContext(runtime.NewRegistry(), opts...)
}

// Env bundles the shared infrastructure built from a configuration:
// logger, audit store, metrics, and telemetry providers.
type Env struct {
	Config     *config.Config
	Logger     *zap.Logger
	AuditStore persistence.AuditStore
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	Telemetry  *telemetry.Providers
}

// NewProcess creates a process wired to the environment's logger, metrics
// collector, and configured step timeout.
func (e *Env) NewProcess(name string, opts ...Option) *process.Process {
	base := []Option{
		process.WithLogger(e.Logger),
		process.WithMetrics(e.Metrics),
		process.WithStepTimeout(e.Config.Process.StepTimeout),
	}
	return process.New("", name, append(base, opts...)...)
}

// AgentOptions derives agent step options from the process configuration:
// the default retry budget and, when a rate is configured, a limiter shared
// by every step built from the same call.
func (e *Env) AgentOptions() []process.AgentStepOption {
	var opts []process.AgentStepOption
	if n := e.Config.Process.AgentRetryAttempts; n > 0 {
		opts = append(opts, process.WithRetryAttempts(n))
	}
	if rps := e.Config.Process.AgentRateLimitRPS; rps > 0 {
		burst := e.Config.Process.AgentRateLimitBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, process.WithRateLimiter(rate.NewLimiter(rate.Limit(rps), burst)))
	}
	return opts
}

// NewContext creates a root execution context in a fresh arena, wired to
// the environment's logger, metrics, depth limit, and a resource injector
// that applies the configured operation timeout. Later options override the
// wired defaults.
func (e *Env) NewContext(opts ...runtime.ContextOption) *runtime.Context {
	timeout := e.Config.Runtime.OperationTimeout
	base := []runtime.ContextOption{
		runtime.WithContextLogger(e.Logger),
		runtime.WithMetrics(e.Metrics),
		runtime.WithMaxDepth(e.Config.Runtime.MaxContextDepth),
		runtime.WithInjector(runtime.InjectorFunc(func(ctx context.Context, operation string) (*runtime.Resources, error) {
			return &runtime.Resources{Config: runtime.ResourceConfig{Timeout: timeout}}, nil
		})),
	}
	return runtime.NewContext(runtime.NewRegistry(), append(base, opts...)...)
}

// Setup builds the shared infrastructure from cfg. The caller owns the
// returned Env and should call Close when done.
func Setup(cfg *config.Config) (*Env, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.Log)

	// Each environment gets its own registry so repeated Setup calls
	// never collide on metric registration.
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("busyflow", registry, logger)

	store, err := persistence.NewAuditStore(cfg.Audit, persistence.WithWriteMetrics(collector))
	if err != nil {
		logger.Error("failed to create audit store", zap.Error(err))
		return nil, err
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return &Env{
		Config:     cfg,
		Logger:     logger,
		AuditStore: store,
		Metrics:    collector,
		Registry:   registry,
		Telemetry:  providers,
	}, nil
}

// Close flushes telemetry and releases the audit store.
func (e *Env) Close(ctx context.Context) error {
	var firstErr error
	if e.Telemetry != nil {
		if err := e.Telemetry.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if e.AuditStore != nil {
		if err := e.AuditStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.Logger != nil {
		_ = e.Logger.Sync()
	}
	return firstErr
}

// NewLogger builds a zap logger from the logging configuration,
// falling back to a production logger if the configuration is invalid.
func NewLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var buildOpts []zap.Option
	if cfg.EnableCaller {
		buildOpts = append(buildOpts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		buildOpts = append(buildOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(buildOpts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

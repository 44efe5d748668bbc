package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records process execution metrics. It implements
// process.MetricsSink.
type Collector struct {
	// Process metrics
	processExecutionsTotal   *prometheus.CounterVec
	processExecutionDuration prometheus.Histogram

	// Step metrics
	stepExecutionsTotal   *prometheus.CounterVec
	stepExecutionDuration *prometheus.HistogramVec
	stepSkipsTotal        prometheus.Counter
	validationWarnings    prometheus.Counter

	// Context metrics
	operationDispatchTotal    *prometheus.CounterVec
	operationDispatchDuration *prometheus.HistogramVec

	// Audit store metrics
	auditWritesTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered on reg. Pass
// prometheus.DefaultRegisterer for production use; tests use a fresh
// registry to avoid duplicate registration.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.processExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_executions_total",
			Help:      "Total number of process executions",
		},
		[]string{"status"},
	)

	c.processExecutionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_execution_duration_seconds",
			Help:      "Process execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
	)

	c.stepExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of step executions",
		},
		[]string{"step_type", "status"},
	)

	c.stepExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_execution_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"step_type"},
	)

	c.stepSkipsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_skips_total",
			Help:      "Total number of skipped steps",
		},
	)

	c.validationWarnings = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_warnings_total",
			Help:      "Total number of soft validation warnings",
		},
	)

	c.operationDispatchTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_dispatch_total",
			Help:      "Total number of operations dispatched through execution contexts",
		},
		[]string{"operation", "status"},
	)

	c.operationDispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_dispatch_duration_seconds",
			Help:      "Operation dispatch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.auditWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Total number of audit entries written",
		},
		[]string{"backend", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordProcessExecution records one completed process execution.
func (c *Collector) RecordProcessExecution(status string, duration time.Duration) {
	c.processExecutionsTotal.WithLabelValues(status).Inc()
	c.processExecutionDuration.Observe(duration.Seconds())
}

// RecordStepExecution records one step execution.
func (c *Collector) RecordStepExecution(stepType, status string, duration time.Duration) {
	c.stepExecutionsTotal.WithLabelValues(stepType, status).Inc()
	c.stepExecutionDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

// RecordStepSkip records a skipped step.
func (c *Collector) RecordStepSkip() {
	c.stepSkipsTotal.Inc()
}

// RecordValidationWarning records a soft validation warning.
func (c *Collector) RecordValidationWarning() {
	c.validationWarnings.Inc()
}

// RecordOperationDispatch records an operation dispatched through an
// execution context.
func (c *Collector) RecordOperationDispatch(operation, status string, duration time.Duration) {
	c.operationDispatchTotal.WithLabelValues(operation, status).Inc()
	c.operationDispatchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuditWrite records an audit store write.
func (c *Collector) RecordAuditWrite(backend, status string) {
	c.auditWritesTotal.WithLabelValues(backend, status).Inc()
}

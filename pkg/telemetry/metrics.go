package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for guildform. All Record and Set
// methods are safe to call on a nil *Metrics.
type Metrics struct {
	config MetricsConfig

	// Apply run metrics
	appliesStarted   prometheus.Counter
	appliesCompleted *prometheus.CounterVec
	applyDuration    *prometheus.HistogramVec
	activeApplies    prometheus.Gauge

	// Per-operation metrics
	operationsApplied *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Diff metrics
	diffOperations *prometheus.GaugeVec

	// Throttling and retry metrics
	retries         *prometheus.CounterVec
	rateLimitEvents prometheus.Counter
	rateLimitWindow prometheus.Histogram
	limiterWait     *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		appliesStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_started_total",
				Help:      "Total number of apply runs started",
			},
		),
		appliesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_completed_total",
				Help:      "Total number of apply runs completed",
			},
			[]string{"status"},
		),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_duration_seconds",
				Help:      "Duration of apply runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeApplies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_applies",
				Help:      "Current number of apply runs in progress",
			},
		),

		operationsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_applied_total",
				Help:      "Total number of diff operations applied",
			},
			[]string{"operation", "resource_type", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of a single applied operation, including throttling and retries",
				Buckets:   buckets,
			},
			[]string{"operation", "resource_type"},
		),

		diffOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "diff_operations",
				Help:      "Operations in the most recently calculated diff",
			},
			[]string{"resource_type", "operation"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retried remote calls",
			},
			[]string{"reason"},
		),
		rateLimitEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_events_total",
				Help:      "Total number of rate-limit signals received from the platform",
			},
		),
		rateLimitWindow: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_window_seconds",
				Help:      "Length of platform-imposed rate-limit windows",
				Buckets:   buckets,
			},
		),
		limiterWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "limiter_wait_seconds",
				Help:      "Time spent waiting for the local rate limiter",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations found in diffs",
			},
			[]string{"policy", "severity"},
		),
	}

	registry.MustRegister(
		m.appliesStarted,
		m.appliesCompleted,
		m.applyDuration,
		m.activeApplies,
		m.operationsApplied,
		m.operationDuration,
		m.diffOperations,
		m.retries,
		m.rateLimitEvents,
		m.rateLimitWindow,
		m.limiterWait,
		m.errorsByClass,
		m.errorsByCode,
		m.policyViolations,
	)

	return m, nil
}

// Apply Metrics

// RecordApplyStarted increments the counter for started apply runs.
func (m *Metrics) RecordApplyStarted() {
	if m == nil || m.appliesStarted == nil {
		return
	}
	m.appliesStarted.Inc()
	m.activeApplies.Inc()
}

// RecordApplyCompleted records a finished apply run.
func (m *Metrics) RecordApplyCompleted(status string, duration time.Duration) {
	if m == nil || m.appliesCompleted == nil {
		return
	}
	m.appliesCompleted.WithLabelValues(status).Inc()
	m.applyDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeApplies.Dec()
}

// RecordOperation records one applied diff operation.
func (m *Metrics) RecordOperation(operation, resourceType, status string, duration time.Duration) {
	if m == nil || m.operationsApplied == nil {
		return
	}
	m.operationsApplied.WithLabelValues(operation, resourceType, status).Inc()
	m.operationDuration.WithLabelValues(operation, resourceType).Observe(duration.Seconds())
}

// SetDiffOperations sets the number of operations of one kind in the
// current diff.
func (m *Metrics) SetDiffOperations(resourceType, operation string, count float64) {
	if m == nil || m.diffOperations == nil {
		return
	}
	m.diffOperations.WithLabelValues(resourceType, operation).Set(count)
}

// Throttling Metrics

// RecordRetry records one retried remote call.
func (m *Metrics) RecordRetry(reason string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(reason).Inc()
}

// RecordRateLimit records a rate-limit signal and its window.
func (m *Metrics) RecordRateLimit(window time.Duration) {
	if m == nil || m.rateLimitEvents == nil {
		return
	}
	m.rateLimitEvents.Inc()
	m.rateLimitWindow.Observe(window.Seconds())
}

// RecordLimiterWait records how long a request waited for admission.
func (m *Metrics) RecordLimiterWait(kind string, wait time.Duration) {
	if m == nil || m.limiterWait == nil {
		return
	}
	m.limiterWait.WithLabelValues(kind).Observe(wait.Seconds())
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m == nil || m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Registry exposes the private registry, mainly for tests. Nil when
// metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It is a no-op
// without a listen address, which is the CLI default.
func (m *Metrics) StartMetricsServer() error {
	if m == nil || !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()

	return nil
}

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "production with endpoint", mutate: func(c *Config) {
			*c = *ProductionConfig()
			c.Tracing.Endpoint = "collector:4317"
		}},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "otlp without endpoint", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, wantErr: true},
		{name: "sampling out of range", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordApplyStarted()
	m.RecordApplyCompleted("success", time.Second)
	m.RecordOperation("create", "role", "success", time.Millisecond)
	m.RecordRetry("rate_limited")
	m.RecordRateLimit(time.Second)
	m.RecordLimiterWait("create", time.Second)
	m.RecordError("transient", "")
	m.RecordPolicyViolation("max_deletes", "error")
	m.SetDiffOperations("role", "create", 3)

	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	if err := m.StartMetricsServer(); err != nil {
		t.Errorf("StartMetricsServer() on nil = %v", err)
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordOperation("create", "role", "success", time.Millisecond)
	if m.Registry() != nil {
		t.Error("disabled metrics should not create a registry")
	}
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordApplyStarted()
	m.RecordOperation("create", "role", "success", 10*time.Millisecond)
	m.RecordOperation("create", "role", "success", 20*time.Millisecond)
	m.RecordOperation("delete", "channel", "failed", time.Millisecond)
	m.RecordRetry("server_error")
	m.RecordRateLimit(2 * time.Second)
	m.RecordError("permanent", "VALIDATION_ERROR")

	if got := testutil.ToFloat64(m.operationsApplied.WithLabelValues("create", "role", "success")); got != 2 {
		t.Errorf("create role successes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.operationsApplied.WithLabelValues("delete", "channel", "failed")); got != 1 {
		t.Errorf("delete channel failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeApplies); got != 1 {
		t.Errorf("active applies = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rateLimitEvents); got != 1 {
		t.Errorf("rate limit events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.errorsByCode.WithLabelValues("VALIDATION_ERROR")); got != 1 {
		t.Errorf("errors by code = %v, want 1", got)
	}

	m.RecordApplyCompleted("success", time.Second)
	if got := testutil.ToFloat64(m.activeApplies); got != 0 {
		t.Errorf("active applies after completion = %v, want 0", got)
	}
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.NewComponentLogger("writer").WithRunID("run-1").Info("applied")
	logger.Debug("hidden")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "writer" || entry["run_id"] != "run-1" || entry["message"] != "applied" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestWithApplyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

	ctx := WithApplyContext(logger.WithContext(context.Background()), "run-9", "guild-1")
	FromContext(ctx).Info("started")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["run_id"] != "run-9" || entry["guild_id"] != "guild-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNilTracerSpans(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.StartOperationSpan(context.Background(), "create", "role", "Admin")
	defer span.End()

	if span.SpanContext().IsValid() {
		t.Error("nil tracer should produce a non-recording span")
	}
	if TraceID(ctx) != "" {
		t.Error("non-recording span should have no trace id")
	}
	if err := tr.ForceFlush(ctx); err != nil {
		t.Errorf("ForceFlush() on nil = %v", err)
	}
	if err := tr.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() on nil = %v", err)
	}
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	if d := timer.Duration(); d < 2*time.Millisecond {
		t.Errorf("Duration() = %v, want at least 2ms", d)
	}
}

func TestTracerNoneExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "none"

	tr, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	defer tr.Shutdown(context.Background())

	ctx, span := tr.StartApplySpan(context.Background(), "guild-1", 3, false)
	defer span.End()

	if TraceID(ctx) == "" {
		t.Error("sampled span should carry a trace id")
	}
	if err := tr.ForceFlush(ctx); err != nil {
		t.Errorf("ForceFlush() error = %v", err)
	}
}

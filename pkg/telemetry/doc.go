// Package telemetry provides logging, tracing and metrics for guildform.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and Prometheus metrics behind one Config.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
// Library packages accept a plain zerolog.Logger; the CLI hands them
// tel.Logger.NewComponentLogger("writer").Zerolog(). The zero value of
// zerolog.Logger discards output, so libraries are silent by default.
//
// # Tracing
//
// Apply runs open a "guildform.apply" span and one child span per applied
// operation. Retries are recorded as span events. Exporters: otlp (gRPC),
// stdout, none. A nil *Tracer yields non-recording spans.
//
// # Metrics
//
// Metrics live in a private Prometheus registry. Every Record method is a
// no-op on a nil or disabled *Metrics, so callers never need to check.
//
//	guildform_applies_started_total
//	guildform_applies_completed_total{status}
//	guildform_apply_duration_seconds{status}
//	guildform_operations_applied_total{operation,resource_type,status}
//	guildform_operation_duration_seconds{operation,resource_type}
//	guildform_diff_operations{resource_type,operation}
//	guildform_retries_total{reason}
//	guildform_rate_limit_events_total
//	guildform_rate_limit_window_seconds
//	guildform_limiter_wait_seconds{kind}
//	guildform_errors_by_class_total{class}
//	guildform_errors_by_code_total{code}
//	guildform_policy_violations_total{policy,severity}
package telemetry

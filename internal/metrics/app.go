package metrics

import (
	"time"

	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/promptdef"
)

// Application-level metrics following Prometheus conventions
var (
	// Compiler operations (parse, validate, render, index)
	OperationsTotal       = "compiler_operations_total"
	OperationsErrorsTotal = "compiler_operations_errors_total"
	OperationDuration     = "compiler_operation_duration_ms"

	// Validation outcomes
	ValidationsTotal = "compiler_validations_total"
	DiagnosticsLast  = "compiler_validation_diagnostics_last"

	// Registry size
	PromptsLoaded = "compiler_prompts_loaded"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// Operation names.
const (
	OpParse    = "parse"
	OpValidate = "validate"
	OpRender   = "render"
	OpIndex    = "index"
)

// ErrorKind is the error_kind label for err, empty when err is nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	return promptdef.KindOf(err).String()
}

// RecordOperation records a compiler operation with status and duration.
// errorKind is empty on success.
func RecordOperation(operation string, errorKind string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "success"
	if errorKind != "" {
		status = "failure"
	}

	_ = observability.TelemetrySystem.Counter(
		OperationsTotal,
		1,
		map[string]string{
			"operation": operation,
			"status":    status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		OperationDuration,
		duration,
		map[string]string{
			"operation": operation,
		},
	)

	if errorKind != "" {
		_ = observability.TelemetrySystem.Counter(
			OperationsErrorsTotal,
			1,
			map[string]string{
				"operation":  operation,
				"error_kind": errorKind,
			},
		)
	}
}

// RecordDiagnostics records the outcome of a validation and how many
// diagnostics it produced.
func RecordDiagnostics(count int) {
	if observability.TelemetrySystem == nil {
		return
	}

	outcome := "valid"
	if count > 0 {
		outcome = "invalid"
	}
	_ = observability.TelemetrySystem.Counter(
		ValidationsTotal,
		1,
		map[string]string{
			"outcome": outcome,
		},
	)
	_ = observability.TelemetrySystem.Gauge(
		DiagnosticsLast,
		float64(count),
		nil,
	)
}

// SetPromptsLoaded sets the number of prompts in the serving registry.
func SetPromptsLoaded(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			PromptsLoaded,
			float64(count),
			nil,
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

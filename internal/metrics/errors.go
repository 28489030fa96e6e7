package metrics

import (
	"strconv"

	"github.com/namelens/promptc/internal/observability"
)

// API error counters. Endpoint labels carry the route pattern, never the raw
// path, so prompt names stay out of label values.
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// RecordAPIError counts one error response. endpoint may be empty when the
// request matched no route.
func RecordAPIError(endpoint, errorCode string, httpStatus int) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	_ = sys.Counter(ErrorsTotalName, 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
	if endpoint == "" {
		return
	}
	_ = sys.Counter(ErrorsByEndpointName, 1, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

// RecordPanic records a recovered handler panic.
func RecordPanic() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, nil)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/promptc/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	return collector
}

func TestRequestMetricsEmitsRequestMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("rendered"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/templates/render", strings.NewReader(`{"template":"x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rendered", rec.Body.String())
	assert.Greater(t, collector.CountMetricsByName(HTTPRequestsTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(HTTPRequestDuration), 0)
	assert.Greater(t, collector.CountMetricsByName(HTTPRequestSize), 0)
	assert.Greater(t, collector.CountMetricsByName(HTTPResponseSize), 0)
	assert.Equal(t, 0, collector.CountMetricsByName(HTTPErrorsTotal))
}

func TestRequestMetricsCountsErrors(t *testing.T) {
	collector := setupTelemetry(t)

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/prompts/parse", nil))

	assert.Greater(t, collector.CountMetricsByName(HTTPErrorsTotal), 0)
}

func TestRequestMetricsWithTelemetryDisabled(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/prompts", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetEndpointPatternFallbacks(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health/*"},
		{"/health/ready", "/health/*"},
		{"/version", "/version"},
		{"/metrics", "/metrics"},
		{"/v1/prompts/CodeReviewer", "/v1/*"},
		{"/other", "/unknown"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.expected, getEndpointPattern(req))
		})
	}
}

func TestErrorClass(t *testing.T) {
	assert.Equal(t, "client_error", errorClass(404))
	assert.Equal(t, "server_error", errorClass(503))
}

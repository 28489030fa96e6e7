package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/namelens/promptc/internal/observability"
	"go.uber.org/zap"
)

// HTTP metric names.
const (
	HTTPRequestsTotal   = "http_requests_total"
	HTTPRequestDuration = "http_request_duration_ms"
	HTTPRequestSize     = "http_request_size_bytes"
	HTTPResponseSize    = "http_response_size_bytes"
	HTTPErrorsTotal     = "http_errors_total"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// getEndpointPattern returns the chi route pattern so prompt names never
// become label values.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	case strings.HasPrefix(path, "/v1/"):
		return "/v1/*"
	default:
		return "/unknown"
	}
}

// RequestMetrics emits HTTP telemetry and logs one line per request.
// Probe traffic is logged at debug level.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(wrapped.statusCode)
		requestSize := r.ContentLength
		if requestSize < 0 {
			requestSize = 0
		}

		sys := observability.TelemetrySystem
		labels := map[string]string{"method": r.Method, "endpoint": endpoint, "status": status}
		sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}

		_ = sys.Counter(HTTPRequestsTotal, 1, labels)
		_ = sys.Histogram(HTTPRequestDuration, duration, labels)
		_ = sys.Gauge(HTTPRequestSize, float64(requestSize), sizeLabels)
		_ = sys.Gauge(HTTPResponseSize, float64(wrapped.bytesWritten), sizeLabels)

		if wrapped.statusCode >= 400 {
			_ = sys.Counter(HTTPErrorsTotal, 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorClass(wrapped.statusCode),
			})
		}

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", duration),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", wrapped.bytesWritten),
			zap.String("request_id", GetRequestID(r.Context())),
		}
		if endpoint == "/health/*" || strings.HasPrefix(endpoint, "/health") {
			logger.Debug("HTTP request completed", fields...)
			return
		}
		logger.Info("HTTP request completed", fields...)
	})
}

func errorClass(status int) string {
	if status >= 500 {
		return "server_error"
	}
	return "client_error"
}

package integration

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/registry"
	"github.com/namelens/promptc/internal/server"
	"github.com/namelens/promptc/internal/server/handlers"
)

const reviewPrompt = `---
name: Review
inputs:
  code: string
  focus: security | style?
output:
  summary: string
  issues: string[]
---
Review this code{% if focus %} for {{ focus }}{% endif %}:
{{ code }}`

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

func loadRegistry(t *testing.T) *registry.InMemoryRegistry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.prompt.md"), []byte(reviewPrompt), 0o644))
	reg, err := registry.Build(dir, false)
	require.NoError(t, err)
	return reg
}

// newTestServer binds to IPv4 loopback explicitly and skips when the sandbox
// refuses to open sockets.
func newTestServer(t *testing.T, opts ...server.Option) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New("127.0.0.1", 0, opts...)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func TestCompilerAPIUnderLoad(t *testing.T) {
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "error"})
	t.Cleanup(func() { observability.ServerLogger = nil })

	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	ts, client := newTestServer(t, server.WithRegistry(loadRegistry(t)))

	const numRequests = 60
	const numWorkers = 10

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	var (
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				var (
					resp *http.Response
					err  error
				)
				switch reqNum % 4 {
				case 0:
					resp, err = client.Post(ts.URL+"/v1/prompts/Review/render", "application/json",
						strings.NewReader(`{"code":"x := 1","focus":"style"}`))
				case 1:
					resp, err = client.Post(ts.URL+"/v1/prompts/Review/render", "application/json",
						strings.NewReader(`{"focus":"speed"}`))
				case 2:
					resp, err = client.Post(ts.URL+"/v1/prompts/Review/validate-output", "application/json",
						strings.NewReader(`{"summary":"ok","issues":[]}`))
				default:
					resp, err = client.Get(ts.URL + "/health")
				}
				if err != nil {
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				mu.Lock()
				statuses[resp.StatusCode]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Equal(t, numRequests/4*3, statuses[http.StatusOK])
	assert.Equal(t, numRequests/4, statuses[http.StatusUnprocessableEntity])

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total")
	assert.Contains(t, metricsContent, "test_compiler_operations_total")
	assert.True(t, elapsed < 5*time.Second, "load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v", numRequests, elapsed)
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	handlers.InitHealthManager("test")
	ts, client := newTestServer(t, server.WithRegistry(loadRegistry(t)))

	resp, err := client.Get(ts.URL + "/v1/prompts")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"Review"`)

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

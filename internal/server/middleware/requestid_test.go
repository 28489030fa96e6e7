package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureRequestID(t *testing.T, header string) (string, string) {
	t.Helper()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec.Header().Get(RequestIDHeader)
}

func TestRequestIDKeepsCallerID(t *testing.T) {
	seen, echoed := captureRequestID(t, "build-42")
	assert.Equal(t, "build-42", seen)
	assert.Equal(t, "build-42", echoed)
}

func TestRequestIDGeneratesWhenMissingOrUnusable(t *testing.T) {
	for _, header := range []string{"", "has space", strings.Repeat("x", maxRequestIDLength+1), "tab\there"} {
		seen, echoed := captureRequestID(t, header)
		_, err := uuid.Parse(seen)
		require.NoError(t, err, header)
		assert.Equal(t, seen, echoed)
		assert.NotEqual(t, header, seen)
	}
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	handler := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/prompts", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "req-1", body.Error.RequestID)
	assert.NotContains(t, body.Error.Message, "boom")
}

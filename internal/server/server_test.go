package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/namelens/promptc/internal/errors"
	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/registry"
	"github.com/namelens/promptc/internal/server/handlers"
)

const basePrompt = `---
name: Base
inputs:
  topic: string
---
Write about {{ topic }}.`

const childPrompt = `---
name: Child
extends: Base
inputs:
  topic: string
  tone: formal | casual?
output:
  title: string
  score: integer
---
{{ topic|upper }}{% if tone %} ({{ tone }}){% endif %}`

func newTestServer(t *testing.T, opts ...Option) http.Handler {
	t.Helper()

	var entries []*registry.Entry
	for source, doc := range map[string]string{"base.prompt.md": basePrompt, "child.prompt.md": childPrompt} {
		entry, err := registry.Load(source, []byte(doc))
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	reg, err := registry.New(entries)
	require.NoError(t, err)

	opts = append([]Option{WithRegistry(reg)}, opts...)
	return New("127.0.0.1", 0, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)

	rec = do(t, h, http.MethodDelete, "/v1/prompts", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, rec).Error.Code)
}

func TestParseEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/prompts/parse", childPrompt)
	require.Equal(t, http.StatusOK, rec.Code)

	var def map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&def))
	assert.Equal(t, "Child", def["name"])
	assert.Equal(t, "Base", def["extends"])
	assert.Equal(t, "llm", def["prompt_type"])

	rec = do(t, h, http.MethodPost, "/v1/prompts/parse", "---\nclient: x\n---\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "MISSING_FIELD", body.Error.Code)
	assert.Equal(t, "missing_field", body.Error.Details["kind"])

	rec = do(t, h, http.MethodPost, "/v1/prompts/parse", "---\nname: A\nmax_turns: many\n---\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decodeError(t, rec)
	assert.Equal(t, "YAML_PARSE", body.Error.Code)
	assert.EqualValues(t, 3, body.Error.Details["line"])
}

func TestParseEndpointRejectsInvalidUTF8(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/v1/prompts/parse", "---\nname: \xff\n---\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UTF8_INVALID", decodeError(t, rec).Error.Code)
}

func TestBodyLimit(t *testing.T) {
	h := newTestServer(t, WithMaxBodyBytes(16))
	rec := do(t, h, http.MethodPost, "/v1/prompts/parse", basePrompt)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, rec).Error.Code)
}

func TestSchemaValidateEndpoint(t *testing.T) {
	h := newTestServer(t)
	schema := `{"type":"object","properties":{"name":{"type":"string"},"age":{"type":"integer"}},"required":["name","age"]}`

	rec := do(t, h, http.MethodPost, "/v1/schemas/validate", `{"schema":`+schema+`,"instance":{"name":"Alice","age":30}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.ValidateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Diagnostics)

	rec = do(t, h, http.MethodPost, "/v1/schemas/validate", `{"schema":`+schema+`,"instance":{"name":5,"age":"x"},"detailed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = handlers.ValidateResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	assert.Len(t, resp.Diagnostics, 2)

	rec = do(t, h, http.MethodPost, "/v1/schemas/validate", `{"schema":`+schema+`,"instance":{"name":5,"age":"x"}}`)
	resp = handlers.ValidateResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	assert.Len(t, resp.Diagnostics, 1)
	assert.Contains(t, resp.Error, "schema validation failed")

	rec = do(t, h, http.MethodPost, "/v1/schemas/validate", `{"schema":{"type":5},"instance":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SCHEMA", decodeError(t, rec).Error.Code)

	rec = do(t, h, http.MethodPost, "/v1/schemas/validate", `{"instance":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code)

	rec = do(t, h, http.MethodPost, "/v1/schemas/validate", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplateRenderEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/templates/render", `{"template":"Hello {{ name }}! You are {{ age }} years old.","context":{"name":"Alice","age":30}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.RenderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Hello Alice! You are 30 years old.", resp.Output)

	rec = do(t, h, http.MethodPost, "/v1/templates/render", `{"template":"plain"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/templates/render", `{"template":"Hello {{ name","context":{}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "TEMPLATE_COMPILE", decodeError(t, rec).Error.Code)

	rec = do(t, h, http.MethodPost, "/v1/templates/render", `{"context":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromptCatalogEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/prompts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []handlers.PromptSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "Base", list[0].Name)
	assert.Nil(t, list[0].Extends)
	assert.Equal(t, "Child", list[1].Name)
	require.NotNil(t, list[1].Extends)
	assert.Equal(t, "Base", *list[1].Extends)
	assert.Len(t, list[1].Digest, 64)

	rec = do(t, h, http.MethodGet, "/v1/prompts/Child", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Name       string         `json:"name"`
		Lineage    []string       `json:"lineage"`
		Definition map[string]any `json:"definition"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.Equal(t, "Child", detail.Name)
	assert.Equal(t, []string{"Child", "Base"}, detail.Lineage)
	assert.Equal(t, "Child", detail.Definition["name"])

	rec = do(t, h, http.MethodGet, "/v1/prompts/Missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptRenderEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/prompts/Child/render", `{"topic":"go","tone":"casual"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.RenderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "GO (casual)", resp.Output)

	rec = do(t, h, http.MethodPost, "/v1/prompts/Child/render", `{"tone":"loud"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.NotEmpty(t, body.Error.Details["diagnostics"])
}

func TestPromptValidateOutputEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/prompts/Child/validate-output", `{"title":"t","score":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.ValidateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)

	rec = do(t, h, http.MethodPost, "/v1/prompts/Child/validate-output", `{"title":"t","score":"high"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = handlers.ValidateResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, "/score", resp.Diagnostics[0].Path)

	rec = do(t, h, http.MethodPost, "/v1/prompts/Child/validate-output", `{"title":`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestMetricsHandlerProxiesPrometheusOutput(t *testing.T) {
	originalClient := metricsProxyClient
	t.Cleanup(func() { metricsProxyClient = originalClient })

	metricsProxyClient = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			resp := &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("promptc_compiler_operations_total 1\n")),
				Header:     make(http.Header),
			}
			resp.Header.Set("Connection", "close")
			return resp, nil
		}),
	}

	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
	t.Cleanup(func() { observability.PrometheusExporter = nil })

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Contains(t, rec.Body.String(), "promptc_compiler_operations_total")
}

func TestMetricsHandlerReturnsServiceUnavailableWithoutExporter(t *testing.T) {
	observability.PrometheusExporter = nil

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).Error.Code)
}

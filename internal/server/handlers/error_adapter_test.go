package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/namelens/promptc/internal/promptdef"
)

const brokenPrompt = "---\nname: A\nmax_turns: many\n---\n"

func TestPromptHandlersUseInstalledResponder(t *testing.T) {
	var captured error
	SetHTTPErrorResponder(func(w http.ResponseWriter, _ *http.Request, err error) {
		captured = err
		w.WriteHeader(http.StatusTeapot)
	})
	t.Cleanup(ResetHTTPErrorResponder)

	h := NewPromptHandlers(nil, 0)
	rec := httptest.NewRecorder()
	h.Parse(rec, httptest.NewRequest(http.MethodPost, "/v1/prompts/parse", strings.NewReader(brokenPrompt)))

	require.Equal(t, http.StatusTeapot, rec.Code)
	var perr *promptdef.Error
	require.True(t, errors.As(captured, &perr))
	require.Equal(t, promptdef.KindYamlParse, perr.Kind)
}

func TestPromptHandlersDefaultResponder(t *testing.T) {
	SetHTTPErrorResponder(nil)

	h := NewPromptHandlers(nil, 0)
	rec := httptest.NewRecorder()
	h.Parse(rec, httptest.NewRequest(http.MethodPost, "/v1/prompts/parse", strings.NewReader(brokenPrompt)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "YAML_PARSE")
}

package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/namelens/promptc/internal/errors"
	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/registry"
	"github.com/namelens/promptc/internal/render"
	"github.com/namelens/promptc/internal/validate"
)

// DefaultMaxBodyBytes applies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

type lineageResolver interface {
	Lineage(name string) ([]*registry.Entry, error)
}

// PromptHandlers serves the /v1 compiler API.
type PromptHandlers struct {
	registry     registry.Registry
	maxBodyBytes int64

	// validators caches compiled schemas per prompt and digest.
	validators sync.Map
}

// NewPromptHandlers builds the API handlers. reg may be nil, in which case
// the registry-backed routes answer NOT_FOUND.
func NewPromptHandlers(reg registry.Registry, maxBodyBytes int64) *PromptHandlers {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &PromptHandlers{registry: reg, maxBodyBytes: maxBodyBytes}
}

// ValidateRequest is the body of POST /v1/schemas/validate.
type ValidateRequest struct {
	Schema   json.RawMessage `json:"schema"`
	Instance json.RawMessage `json:"instance"`
	Detailed bool            `json:"detailed"`
}

// ValidateResponse reports a validation outcome. Without detailed mode only
// the first diagnostic is returned.
type ValidateResponse struct {
	Valid       bool                  `json:"valid"`
	Diagnostics []validate.Diagnostic `json:"diagnostics"`
	Error       string                `json:"error,omitempty"`
}

// RenderRequest is the body of POST /v1/templates/render.
type RenderRequest struct {
	Template *string         `json:"template"`
	Context  json.RawMessage `json:"context"`
}

// RenderResponse carries rendered text.
type RenderResponse struct {
	Output string `json:"output"`
}

// PromptSummary is one row of GET /v1/prompts.
type PromptSummary struct {
	Name       string  `json:"name"`
	PromptType string  `json:"prompt_type"`
	Client     string  `json:"client"`
	Extends    *string `json:"extends"`
	Source     string  `json:"source"`
	Digest     string  `json:"digest"`
}

// PromptDetail is the body of GET /v1/prompts/{name}.
type PromptDetail struct {
	PromptSummary
	Lineage    []string              `json:"lineage"`
	Definition *promptdef.Definition `json:"definition"`
}

// Parse compiles the raw request body as a prompt document.
func (h *PromptHandlers) Parse(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	start := time.Now()
	def, err := promptdef.ParseBytes(body)
	metrics.RecordOperation(metrics.OpParse, metrics.ErrorKind(err), time.Since(start))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// ValidateSchema checks an instance against an inline JSON Schema.
func (h *PromptHandlers) ValidateSchema(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if len(bytes.TrimSpace(req.Schema)) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("schema is required"))
		return
	}
	if len(bytes.TrimSpace(req.Instance)) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("instance is required"))
		return
	}

	start := time.Now()
	validator, err := validate.Compile(req.Schema)
	if err != nil {
		metrics.RecordOperation(metrics.OpValidate, metrics.ErrorKind(err), time.Since(start))
		respondWithError(w, r, err)
		return
	}
	h.writeValidation(w, r, validator, req.Instance, req.Detailed, start)
}

// RenderTemplate renders an inline template against a JSON context.
func (h *PromptHandlers) RenderTemplate(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Template == nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("template is required"))
		return
	}

	start := time.Now()
	out, err := renderContext(*req.Template, req.Context)
	metrics.RecordOperation(metrics.OpRender, metrics.ErrorKind(err), time.Since(start))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{Output: out})
}

// ListPrompts lists registered prompts sorted by name.
func (h *PromptHandlers) ListPrompts(w http.ResponseWriter, r *http.Request) {
	summaries := []PromptSummary{}
	if h.registry != nil {
		for _, entry := range h.registry.List() {
			summaries = append(summaries, summarize(entry))
		}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetPrompt returns one prompt with its extends lineage.
func (h *PromptHandlers) GetPrompt(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}

	lineage := []string{entry.Name()}
	if lr, isLineage := h.registry.(lineageResolver); isLineage {
		if chain, err := lr.Lineage(entry.Name()); err == nil {
			lineage = lineage[:0]
			for _, e := range chain {
				lineage = append(lineage, e.Name())
			}
		}
	}

	writeJSON(w, http.StatusOK, PromptDetail{
		PromptSummary: summarize(entry),
		Lineage:       lineage,
		Definition:    entry.Definition,
	})
}

// RenderPrompt validates the request body against the prompt's inputs schema
// and renders its body template.
func (h *PromptHandlers) RenderPrompt(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	start := time.Now()
	validator, err := h.validator(entry, "inputs", entry.Definition.InputsSchema())
	if err != nil {
		metrics.RecordOperation(metrics.OpRender, metrics.ErrorKind(err), time.Since(start))
		respondWithError(w, r, err)
		return
	}
	diags, err := validator.Diagnostics(body)
	if err == nil && len(diags) > 0 {
		metrics.RecordDiagnostics(len(diags))
		err = validate.Join(diags)
	}
	if err != nil {
		metrics.RecordOperation(metrics.OpRender, metrics.ErrorKind(err), time.Since(start))
		envelope := apperrors.FromError(r.Context(), err)
		if len(diags) > 0 {
			envelope = envelope.WithDetails(map[string]interface{}{"diagnostics": diags})
		}
		respondWithError(w, r, envelope)
		return
	}

	out, err := renderContext(entry.Definition.BodyTemplate(), body)
	metrics.RecordOperation(metrics.OpRender, metrics.ErrorKind(err), time.Since(start))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{Output: out})
}

// ValidateOutput checks a model response against the prompt's output schema.
func (h *PromptHandlers) ValidateOutput(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	start := time.Now()
	validator, err := h.validator(entry, "output", entry.Definition.OutputSchema())
	if err != nil {
		metrics.RecordOperation(metrics.OpValidate, metrics.ErrorKind(err), time.Since(start))
		respondWithError(w, r, err)
		return
	}
	h.writeValidation(w, r, validator, body, true, start)
}

func (h *PromptHandlers) writeValidation(w http.ResponseWriter, r *http.Request, v *validate.Validator, instance []byte, detailed bool, start time.Time) {
	diags, err := v.Diagnostics(instance)
	metrics.RecordOperation(metrics.OpValidate, metrics.ErrorKind(err), time.Since(start))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	metrics.RecordDiagnostics(len(diags))

	resp := ValidateResponse{Valid: len(diags) == 0, Diagnostics: diags}
	if !resp.Valid && !detailed {
		resp.Diagnostics = diags[:1]
		resp.Error = validate.Join(diags).Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromptHandlers) lookup(w http.ResponseWriter, r *http.Request) (*registry.Entry, bool) {
	name := chi.URLParam(r, "name")
	if h.registry == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("prompt not found: "+name))
		return nil, false
	}
	entry, err := h.registry.Get(name)
	if err != nil {
		respondWithError(w, r, err)
		return nil, false
	}
	return entry, true
}

func (h *PromptHandlers) validator(entry *registry.Entry, which string, schema *promptdef.Schema) (*validate.Validator, error) {
	key := entry.Name() + "\x00" + entry.Digest + "\x00" + which
	if cached, ok := h.validators.Load(key); ok {
		return cached.(*validate.Validator), nil
	}
	v, err := validate.CompileSchema(schema)
	if err != nil {
		return nil, err
	}
	actual, _ := h.validators.LoadOrStore(key, v)
	return actual.(*validate.Validator), nil
}

func (h *PromptHandlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondWithError(w, r, apperrors.NewPayloadTooLargeError("request body exceeds limit"))
			return nil, false
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "failed to read request body"))
		return nil, false
	}
	return body, true
}

func (h *PromptHandlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := h.readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object"))
		return false
	}
	return true
}

func renderContext(template string, context []byte) (string, error) {
	tpl, err := render.Compile(template)
	if err != nil {
		return "", err
	}
	if bytes.Equal(bytes.TrimSpace(context), []byte("null")) {
		context = nil
	}
	return tpl.RenderJSON(context)
}

func summarize(entry *registry.Entry) PromptSummary {
	def := entry.Definition
	summary := PromptSummary{
		Name:       def.Name(),
		PromptType: def.Type(),
		Client:     def.Client(),
		Source:     entry.Source,
		Digest:     entry.Digest,
	}
	if parent, ok := def.Extends(); ok {
		summary.Extends = &parent
	}
	return summary
}

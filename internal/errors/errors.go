// Package errors maps compiler failures onto gofulmen error envelopes and
// writes them as HTTP responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/registry"
	"github.com/namelens/promptc/internal/server/middleware"
)

// Envelope codes.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeInternal         = "INTERNAL_ERROR"
	CodeDatabase         = "DATABASE_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"

	CodeIO              = "IO_ERROR"
	CodeYAMLParse       = "YAML_PARSE"
	CodeTemplateCompile = "TEMPLATE_COMPILE"
	CodeMissingField    = "MISSING_FIELD"
	CodeInvalidSchema   = "INVALID_SCHEMA"
	CodeUTF8Invalid     = "UTF8_INVALID"
	CodeValidation      = "VALIDATION_FAILED"
)

// CodeForKind returns the envelope code for a compiler error kind.
func CodeForKind(kind promptdef.Kind) string {
	switch kind {
	case promptdef.KindIo:
		return CodeIO
	case promptdef.KindYamlParse:
		return CodeYAMLParse
	case promptdef.KindTemplateCompile:
		return CodeTemplateCompile
	case promptdef.KindMissingField:
		return CodeMissingField
	case promptdef.KindInvalidSchema:
		return CodeInvalidSchema
	case promptdef.KindUtf8:
		return CodeUTF8Invalid
	case promptdef.KindValidationFailed:
		return CodeValidation
	default:
		return CodeInternal
	}
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewPayloadTooLargeError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodePayloadTooLarge, message)
}

func NewUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnavailable, message)
}

// WrapInvalidInput reports a malformed request body.
func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

// WrapInternal reports an unexpected server-side failure.
func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := wrap(ctx, CodeInternal, err, message)
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

// WrapDatabaseError reports a catalog store failure.
func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := wrap(ctx, CodeDatabase, err, message)
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

// FromError classifies err. Compiler errors keep their kind, unknown prompt
// names become NOT_FOUND and anything else is INTERNAL_ERROR.
func FromError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return EnsureEnvelope(nil)
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	switch {
	case stderrors.Is(err, registry.ErrNotFound), stderrors.Is(err, registry.ErrNotConfigured):
		return wrap(ctx, CodeNotFound, nil, err.Error())
	case stderrors.Is(err, registry.ErrNameRequired):
		return wrap(ctx, CodeInvalidInput, nil, err.Error())
	}

	var perr *promptdef.Error
	if stderrors.As(err, &perr) {
		envelope = wrap(ctx, CodeForKind(perr.Kind), nil, err.Error())
		fields := map[string]interface{}{"kind": perr.Kind.String()}
		if perr.Line > 0 {
			fields["line"] = perr.Line
		}
		if perr.Field != "" {
			fields["field"] = perr.Field
		}
		if updated, uerr := envelope.WithContext(fields); uerr == nil {
			envelope = updated
		}
		envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
		return envelope
	}

	return WrapInternal(ctx, err, "unexpected error")
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	correlationID := extractCorrelationID(ctx)
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(correlationID)
	envelope = envelope.WithTraceID(correlationID)
	return withWrappedError(envelope, err)
}

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	return FromError(nil, err)
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput, CodeYAMLParse, CodeMissingField, CodeInvalidSchema, CodeUTF8Invalid:
		return http.StatusBadRequest
	case CodeValidation, CodeTemplateCompile:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// ResponseDetails constructs API-safe details map by merging envelope details and context.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})

	for key, value := range envelope.Details {
		details[key] = value
	}

	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}

	return details
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError classifies err and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	RespondWithEnvelope(w, r, FromError(ctx, err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	response := HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	endpoint := ""
	if r != nil {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			endpoint = rctx.RoutePattern()
		}
	}
	metrics.RecordAPIError(endpoint, envelope.Code, statusCode)
}

package handlers

import (
	"net/http"

	apperrors "github.com/namelens/promptc/internal/errors"
)

// The /v1 prompt handlers and the health handlers report failures through
// respondWithError. Compiler errors, registry lookups and request problems
// become envelopes in apperrors; the server swaps in its own responder so
// logging and metrics happen in one place.

var defaultHTTPErrorResponder = func(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

var httpErrorResponder = defaultHTTPErrorResponder

// SetHTTPErrorResponder installs the responder used by the /v1 and health
// handlers. nil restores the default.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		httpErrorResponder = defaultHTTPErrorResponder
		return
	}
	httpErrorResponder = responder
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultHTTPErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

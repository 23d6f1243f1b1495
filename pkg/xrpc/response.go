package xrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spkeasy-social/spkeasy/internal/logger"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; all that is left is to record the failure.
		logger.Error("Failed to encode response", logger.Err(err))
	}
}

// WriteError classifies err and writes the error body. Internal errors
// are logged with the underlying cause; the body never carries it.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	xe := classify(err)
	if xe.Kind == KindInternal {
		logger.ErrorCtx(ctx, "Request failed", logger.Err(err))
	}
	WriteJSON(w, xe.Kind.HTTPStatus(), errorBody{
		Error:   xe.Kind,
		Message: xe.Message,
		Code:    xe.Code,
	})
}

// classify coerces any error into a classified one.
func classify(err error) *Error {
	var xe *Error
	if errors.As(err, &xe) {
		return xe
	}
	return FromStoreError(err)
}

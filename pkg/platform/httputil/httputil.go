// Package httputil holds the JSON response envelope shared by all handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "github.com/epitomedu/epi/pkg/domain-errors"
)

// internalMessage replaces the message of internal errors so faults never leak
// store details to the caller.
const internalMessage = "processing failed"

// ErrorResponse is the failure envelope of every endpoint.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into its status and envelope. Errors
// without a domain code are treated as internal.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	msg := internalMessage
	if de, ok := dErrors.As(err); ok && code != dErrors.CodeInternal {
		msg = de.Message
	}
	WriteJSON(w, dErrors.HTTPStatus(code), ErrorResponse{
		OK:      false,
		Error:   string(code),
		Message: msg,
	})
}

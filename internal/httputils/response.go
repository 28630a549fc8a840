// Package httputils writes the small JSON bodies the HTTP endpoints answer with.
// internal/httputils/response.go
package httputils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/mcperror"
)

// ErrorBody is the JSON body of non-2xx answers that carry no JSON-RPC envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes data as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		wrapped := errors.Wrapf(err, "failed to encode JSON response of type %T", data)
		logging.GetLogger("httputils").Error("Failed to encode JSON response.", "error", fmt.Sprintf("%+v", wrapped))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteError answers with the HTTP status matching err and a {"error": message} body.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFromError(err)
	message := http.StatusText(status)

	var base *mcperror.BaseError
	if errors.As(err, &base) && status < http.StatusInternalServerError {
		message = base.Message
	}
	WriteJSON(w, status, ErrorBody{Error: message})
}

// StatusFromError maps error codes to HTTP status codes.
func StatusFromError(err error) int {
	switch mcperror.CodeOf(err) {
	case mcperror.ErrProtocol, mcperror.ErrParseError, mcperror.ErrInvalidRequest, mcperror.ErrInvalidParams:
		return http.StatusBadRequest
	case mcperror.ErrSessionNotFound, mcperror.ErrMethodNotFound, mcperror.ErrToolNotFound:
		return http.StatusNotFound
	case mcperror.ErrAuthMissing:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

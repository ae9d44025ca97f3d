// internal/app/system/respond/respond.go
// Package respond writes JSON bodies and JSON error envelopes for API handlers.
package respond

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dalemusser/reviewhub/internal/app/system/limits"
)

// ErrorBody is the envelope written for every non-2xx API response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an ErrorBody with the given status code.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{Error: code, Message: message, Details: details})
}

// BadRequest writes a 400 with code "bad_request".
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "bad_request", message, nil)
}

// NotFound writes a 404 with code "not_found".
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "not_found", message, nil)
}

// Unauthorized writes a 401 with code "unauthenticated".
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
}

// Forbidden writes a 403 with code "forbidden".
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "forbidden", message, nil)
}

// Internal writes a 500. The message is generic; callers log the cause.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "internal", "internal server error", nil)
}

// Decode reads a JSON request body into v, rejecting unknown fields. Bodies
// beyond limits.MaxJSONBody are cut off and fail to decode.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, limits.MaxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

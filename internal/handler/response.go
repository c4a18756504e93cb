package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "validation_error", "message": "email: must be a valid email address", "field": "email"}
//
// "error" is machine-readable and stable; "message" is for humans; "field"
// is present only when a single input field is to blame.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/entity-auth/internal/apperror"
)

// maxBodyBytes caps request bodies. Every payload here is a handful of short
// strings.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, if any
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, any header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// decodeJSON reads a JSON body into dst. The caller writes the 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeBadRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: "request body must be valid JSON",
	})
}

// errorMapping is checked in order; the first kind found in the chain wins.
var errorMapping = []struct {
	kind      error
	status    int
	errorType string
	expose    bool // whether AppError.Message is safe to show the client
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error", true},
	{apperror.ErrRehashAttempt, http.StatusBadRequest, "invalid_password", true},
	{apperror.ErrInvalidResetToken, http.StatusBadRequest, "invalid_reset_token", true},
	{apperror.ErrResetTokenExpired, http.StatusBadRequest, "reset_token_expired", true},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", true},
	{apperror.ErrTokenExpired, http.StatusUnauthorized, "token_expired", true},
	{apperror.ErrMalformedToken, http.StatusUnauthorized, "invalid_token", false},
	{apperror.ErrSignatureInvalid, http.StatusUnauthorized, "invalid_token", false},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found", true},
	{apperror.ErrConflict, http.StatusConflict, "conflict", true},
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. It returns
// apperror kinds; this function is the only place they become 4xx/5xx.
//
// Anything unmapped (persistence failures, a broken random source, a
// missing signing key) is a 500 with a generic message. Internal details
// such as SQL errors never reach the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, m := range errorMapping {
			if !errors.Is(err, m.kind) {
				continue
			}
			resp := ErrorResponse{Error: m.errorType, Message: m.kind.Error()}
			if m.expose {
				resp.Message = appErr.Message
				resp.Field = appErr.Field
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// Package handler turns HTTP requests into service calls and service results
// into JSON responses. Handlers hold no business rules.
package handler

// Every error response has the same shape:
//
//	{"error": "not_found", "message": "business not found with id 100200"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/cardauth/internal/apperror"
)

// ErrorResponse is the standard error body returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable, e.g. "not_found"
	Message string `json:"message"` // human-readable
	Field   string `json:"field,omitempty"`
}

// writeJSON sets headers and status before encoding; anything set after the
// first write is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a service error to an HTTP status. Anything that is not
// an *apperror.AppError becomes a generic 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrNumberCollision):
			// Lost a race for a generated number; the same request can succeed.
			status = http.StatusServiceUnavailable
			errorType = "number_collision"
			w.Header().Set("Retry-After", "1")
		case errors.Is(err, apperror.ErrCapacityExhausted):
			status = http.StatusServiceUnavailable
			errorType = "capacity_exhausted"
		}

		if status == http.StatusInternalServerError {
			slog.Error("unmapped application error", slog.String("error", err.Error()))
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	slog.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

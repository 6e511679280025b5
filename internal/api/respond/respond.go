// Package respond centralizes JSON response writing and the mapping from
// the error taxonomy to HTTP status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/reelscript/reelscript/internal/model"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// WriteTyped maps a typed domain error onto its HTTP status. Quota errors
// also set Retry-After.
func WriteTyped(w http.ResponseWriter, err error) {
	var (
		denied      *model.AccessDeniedError
		quota       *model.QuotaExceededError
		unavailable *model.UnavailableError
		timeout     *model.TimeoutError
	)
	switch {
	case errors.Is(err, model.ErrValidation):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		WriteNotFound(w, "not found")
	case errors.As(err, &denied):
		WriteError(w, http.StatusForbidden, denied.Reason)
	case errors.As(err, &quota):
		w.Header().Set("Retry-After", strconv.Itoa(int(quota.RetryAfter.Seconds())))
		w.Header().Set("X-RateLimit-Remaining", "0")
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &unavailable), errors.As(err, &timeout):
		WriteError(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
	default:
		WriteInternalError(w, "internal error")
	}
}

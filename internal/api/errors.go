package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codecrate/codecrate/internal/channel"
	"github.com/codecrate/codecrate/internal/registry"
	"github.com/codecrate/codecrate/internal/session"
)

// Error codes returned in API responses.
const (
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeSessionNotReady     = "SESSION_NOT_READY"
	ErrCodeExecutionInProgress = "EXECUTION_IN_PROGRESS"
	ErrCodeInvalidMove         = "INVALID_MOVE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// APIError is the JSON error body. Every error response carries ok:false
// and a stable code; clients switch on the code, not the message.
type APIError struct {
	OK      bool   `json:"ok"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeAPIError maps typed orchestrator errors onto stable codes and HTTP
// statuses. Raw engine errors never reach here; the session layer has
// already converted them.
func writeAPIError(w http.ResponseWriter, err error) {
	code := ErrCodeInternalError
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, registry.ErrNotFound):
		code, status = ErrCodeSessionNotFound, http.StatusNotFound
	case errors.Is(err, session.ErrNotReady):
		code, status = ErrCodeSessionNotReady, http.StatusConflict
	case errors.Is(err, session.ErrInvalidMove):
		code, status = ErrCodeInvalidMove, http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidPath):
		code, status = ErrCodeInvalidRequest, http.StatusBadRequest
	case errors.Is(err, channel.ErrExecutionInProgress):
		code, status = ErrCodeExecutionInProgress, http.StatusConflict
	}

	writeJSON(w, status, APIError{OK: false, Code: code, Message: err.Error()})
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, APIError{OK: false, Code: ErrCodeInvalidRequest, Message: message})
}

func writeUnauthorizedError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, APIError{OK: false, Code: ErrCodeUnauthorized, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

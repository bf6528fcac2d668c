package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/verdantlogic/greenhouse-core/internal/greenhouse"
	"github.com/verdantlogic/greenhouse-core/internal/module"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps repository sentinel errors onto HTTP responses.
//
// Ownership failures map to 404 rather than 403: the response never reveals
// whether a resource exists but belongs to someone else. Claim conflicts map
// to 400 so firmware and app clients treat them as a retryable user error
// rather than a permissions problem.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, module.ErrInvalidInput),
		errors.Is(err, module.ErrInvalidKind),
		errors.Is(err, greenhouse.ErrInvalidInput),
		errors.Is(err, greenhouse.ErrNotAMember):
		writeBadRequest(w, err.Error())

	case errors.Is(err, module.ErrAlreadyClaimed),
		errors.Is(err, greenhouse.ErrNameTaken):
		writeError(w, http.StatusBadRequest, ErrCodeConflict, err.Error())

	case errors.Is(err, module.ErrNotFound),
		errors.Is(err, module.ErrNotOwned),
		errors.Is(err, greenhouse.ErrNotFound),
		errors.Is(err, greenhouse.ErrModuleNotOwned):
		writeNotFound(w, err.Error())

	default:
		s.logger.Error("store operation failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}

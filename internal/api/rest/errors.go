package rest

import (
	"errors"
	"net/http"

	"github.com/ladderflow/engine/internal/models"
)

// APIError is the engine's HTTP error envelope, grounded on the teacher's
// internal/infrastructure/api/rest/errors.go APIError/TranslateError
// pattern.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "Required parameter is missing", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
)

// TranslateError maps a domain error (spec §9's sentinel errors) onto the
// HTTP status and machine-readable code the API surface returns.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		return NewAPIError("SESSION_NOT_FOUND", "Session not found", http.StatusNotFound)
	case errors.Is(err, models.ErrChatHandlerMissing):
		return NewAPIError("CHAT_HANDLER_MISSING", "No chat handler for stimulus", http.StatusNotFound)
	case errors.Is(err, models.ErrNodeNotFound):
		return NewAPIError("NODE_NOT_FOUND", "Node not found", http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidEdge):
		return NewAPIError("INVALID_EDGE", "Edge violates type hierarchy", http.StatusBadRequest)
	case errors.Is(err, models.ErrCyclicDependency):
		return NewAPIError("CYCLIC_DEPENDENCY", "Graft would create a cycle", http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidTransition):
		return NewAPIError("INVALID_TRANSITION", "Invalid stage transition", http.StatusConflict)
	case errors.Is(err, models.ErrSnapshotCorrupt):
		return NewAPIError("SNAPSHOT_CORRUPT", "Session snapshot failed to deserialize", http.StatusInternalServerError)
	case errors.Is(err, models.ErrLLMUnavailable), errors.Is(err, models.ErrLLMTransport):
		return NewAPIError("LLM_UNAVAILABLE", "LLM provider unavailable", http.StatusBadGateway)
	}

	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return &APIError{
			Code:       "VALIDATION_FAILED",
			Message:    ve.Message,
			HTTPStatus: http.StatusBadRequest,
			Details:    map[string]interface{}{"field": ve.Field},
		}
	}

	return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
}

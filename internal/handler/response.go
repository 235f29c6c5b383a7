package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"bulksender/internal/logging"
	"bulksender/internal/service"
)

// Error codes of the JSON error envelope
const (
	CodeInvalidJSON   = "INVALID_JSON"
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "RESOURCE_NOT_FOUND"
	CodeBusinessLogic = "BUSINESS_LOGIC_ERROR"
	CodeConflict      = "CONFLICT"
	CodeUnavailable   = "UNAVAILABLE"
	CodeInternal      = "INTERNAL_ERROR"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Int("status", status).Msg("failed to encode JSON response")
		return err
	}
	return nil
}

// WriteError writes the error envelope
func WriteError(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func WriteCreated(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusCreated, data)
}

func WriteOK(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, data)
}

func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidation, message)
}

// HandleServiceError maps service layer errors to HTTP responses.
// Unknown errors are logged and hidden behind a generic 500.
func HandleServiceError(w http.ResponseWriter, err error) {
	var (
		notFound   *service.NotFoundError
		validation *service.ValidationError
		business   *service.BusinessLogicError
		conflict   *service.ConflictError
	)

	switch {
	case errors.As(err, &notFound):
		WriteError(w, http.StatusNotFound, CodeNotFound,
			fmt.Sprintf("%s with ID %s not found", notFound.Resource, notFound.ID))
	case errors.As(err, &validation):
		WriteValidationError(w, validation.Message)
	case errors.As(err, &business):
		WriteError(w, http.StatusBadRequest, CodeBusinessLogic, business.Message)
	case errors.As(err, &conflict):
		WriteError(w, http.StatusConflict, CodeConflict, conflict.Message)
	case errors.Is(err, service.ErrShuttingDown):
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	default:
		logging.Error().Err(err).Msg("unhandled service error")
		WriteError(w, http.StatusInternalServerError, CodeInternal, "An internal error occurred")
	}
}

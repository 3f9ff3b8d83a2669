package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/memphora/memphora-mcp/internal/errortypes"
)

// ErrorResponse is the JSON body of every error the dev server returns.
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Detail  string                 `json:"detail,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	ErrorCodeInvalidRequest      = "INVALID_REQUEST"
	ErrorCodeAuthenticationError = "AUTHENTICATION_ERROR"
	ErrorCodeResourceNotFound    = "RESOURCE_NOT_FOUND"
	ErrorCodeInternalError       = "INTERNAL_ERROR"
	ErrorCodeBadGateway          = "BAD_GATEWAY"
)

// writeErrorResponse writes a structured error response and logs the cause.
func writeErrorResponse(w http.ResponseWriter, logger *slog.Logger, status int, code, message string, err error) {
	resp := ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	}

	if err != nil {
		resp.Detail = err.Error()

		var appErr *errortypes.AppError
		if errors.As(err, &appErr) && len(appErr.Fields) > 0 {
			resp.Fields = appErr.Fields
		}

		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, "Request failed",
			"status_code", status, "error_code", code, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}

// HandleBadRequest writes a 400 response.
func HandleBadRequest(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	writeErrorResponse(w, logger, http.StatusBadRequest, ErrorCodeInvalidRequest, message, err)
}

// HandleUnauthorized writes a 401 response.
func HandleUnauthorized(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	writeErrorResponse(w, logger, http.StatusUnauthorized, ErrorCodeAuthenticationError, message, err)
}

// HandleNotFound writes a 404 response.
func HandleNotFound(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	writeErrorResponse(w, logger, http.StatusNotFound, ErrorCodeResourceNotFound, message, err)
}

// HandleInternalError writes a 500 response.
func HandleInternalError(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	writeErrorResponse(w, logger, http.StatusInternalServerError, ErrorCodeInternalError, message, err)
}

// ErrorWithStatus pins an error to an HTTP status and error code.
type ErrorWithStatus struct {
	err        error
	statusCode int
	errorCode  string
	message    string
}

// NewErrorWithStatus creates a new error with HTTP status code
func NewErrorWithStatus(err error, status int, code, message string) *ErrorWithStatus {
	return &ErrorWithStatus{
		err:        err,
		statusCode: status,
		errorCode:  code,
		message:    message,
	}
}

func (e *ErrorWithStatus) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.err.Error()
}

func (e *ErrorWithStatus) Unwrap() error { return e.err }

// StatusCode returns the HTTP status code
func (e *ErrorWithStatus) StatusCode() int { return e.statusCode }

// ErrorCode returns the application error code
func (e *ErrorWithStatus) ErrorCode() string { return e.errorCode }

// Message returns the client-facing message
func (e *ErrorWithStatus) Message() string { return e.message }

// HandleError picks the response status from the error's type.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var statusErr *ErrorWithStatus
	if errors.As(err, &statusErr) {
		writeErrorResponse(w, logger, statusErr.StatusCode(), statusErr.ErrorCode(), statusErr.Message(), statusErr.Unwrap())
		return
	}

	switch {
	case errortypes.IsValidationError(err):
		HandleBadRequest(w, logger, "Invalid request parameters", err)
	case errortypes.IsNotFoundError(err):
		HandleNotFound(w, logger, "Resource not found", err)
	case errortypes.IsConfigError(err):
		HandleUnauthorized(w, logger, "Authentication failed", err)
	case errortypes.IsTransportError(err), errortypes.IsErrorType(err, errortypes.ErrorTypeExternal):
		writeErrorResponse(w, logger, http.StatusBadGateway, ErrorCodeBadGateway, "Downstream service error", err)
	default:
		HandleInternalError(w, logger, "An unexpected error occurred", err)
	}
}

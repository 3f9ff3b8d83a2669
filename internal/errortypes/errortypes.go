// Package errortypes provides error types and handling for memphora-mcp.
package errortypes

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"unicode/utf8"
)

// ErrorType represents the type of error that occurred
type ErrorType string

// Error types
const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeRemote     ErrorType = "remote"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
)

// maxBodyInMessage bounds how much of a remote response body ends up in an
// error string.
const maxBodyInMessage = 512

// AppError represents an application error with context
type AppError struct {
	Err       error
	Type      ErrorType
	Message   string
	StackInfo string
	Fields    map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

// Unwrap unwraps the error to support errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithField adds a field to the error for additional context
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple fields to the error for additional context
func (e *AppError) WithFields(fields map[string]interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// StatusError is the cause of a remote error: the memory API answered with a
// non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.Join(strings.Fields(e.Body), " ")
	if len(body) > maxBodyInMessage {
		cut := maxBodyInMessage
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	if body == "" {
		return fmt.Sprintf("memphora API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("memphora API returned status %d: %s", e.StatusCode, body)
}

// NotFound is the cause of a not-found error.
type NotFound struct {
	Kind string
	Name string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Name)
}

// captureStack captures the stack trace at the call site
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		// Skip testing and standard library frames
		if !strings.Contains(frame.File, "testing/") && !strings.Contains(frame.File, "/go/src/") {
			fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return builder.String()
}

// newAppError creates a new AppError with the given type, underlying error, and message
func newAppError(errType ErrorType, err error, message string) *AppError {
	if err == nil {
		err = errors.New("unknown error")
	}

	return &AppError{
		Err:       err,
		Type:      errType,
		Message:   message,
		StackInfo: captureStack(),
		Fields:    make(map[string]interface{}),
	}
}

// ValidationError creates a new validation error
func ValidationError(err error, message string) *AppError {
	return newAppError(ErrorTypeValidation, err, message)
}

// ConfigError creates a new configuration error
func ConfigError(err error, message string) *AppError {
	return newAppError(ErrorTypeConfig, err, message)
}

// TransportError creates a new transport error (network failure or timeout)
func TransportError(err error, message string) *AppError {
	return newAppError(ErrorTypeTransport, err, message)
}

// RemoteServiceError creates an error for a non-success HTTP status returned
// by the memory API. The status code and body are kept on the cause.
func RemoteServiceError(statusCode int, body string) *AppError {
	return newAppError(ErrorTypeRemote, &StatusError{StatusCode: statusCode, Body: body}, "").
		WithField("status_code", statusCode)
}

// NotFoundError creates an error for an unknown named entity, such as a prompt.
func NotFoundError(kind, name string) *AppError {
	return newAppError(ErrorTypeNotFound, &NotFound{Kind: kind, Name: name}, "").
		WithField(kind, name)
}

// InternalError creates a new internal error
func InternalError(err error, message string) *AppError {
	return newAppError(ErrorTypeInternal, err, message)
}

// ExternalError creates a new external error
func ExternalError(err error, message string) *AppError {
	return newAppError(ErrorTypeExternal, err, message)
}

// LogError logs an AppError using the provided slog.Logger or the default slog logger.
// It logs the error message, type, stack trace, and any associated fields.
func LogError(logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		args := []any{
			"type", string(appErr.Type),
			"original_error", appErr.Err.Error(),
		}
		if appErr.StackInfo != "" {
			args = append(args, "stack", appErr.StackInfo)
		}
		for k, v := range appErr.Fields {
			args = append(args, k, v)
		}
		msg := appErr.Message
		if msg == "" {
			msg = appErr.Err.Error()
		}
		logger.Error(msg, args...)
	} else {
		logger.Error(err.Error(), "error", err)
	}
}

// IsErrorType checks if an error is of a specific ErrorType
func IsErrorType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return IsErrorType(err, ErrorTypeConfig)
}

// IsTransportError checks if an error is a transport error
func IsTransportError(err error) bool {
	return IsErrorType(err, ErrorTypeTransport)
}

// IsRemoteServiceError checks if an error is a remote service error
func IsRemoteServiceError(err error) bool {
	return IsErrorType(err, ErrorTypeRemote)
}

// IsNotFoundError checks if an error is a not-found error
func IsNotFoundError(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// StatusCode returns the HTTP status carried by a remote service error.
func StatusCode(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

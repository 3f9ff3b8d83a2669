package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/logger"
)

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		code       string
		message    string
		err        error
		wantDetail string
		wantFields bool
	}{
		{
			name:       "plain error",
			status:     http.StatusBadRequest,
			code:       ErrorCodeInvalidRequest,
			message:    "Invalid input",
			err:        errors.New("test error"),
			wantDetail: "test error",
		},
		{
			name:    "nil error",
			status:  http.StatusInternalServerError,
			code:    ErrorCodeInternalError,
			message: "Something went wrong",
		},
		{
			name:       "app error with fields",
			status:     http.StatusNotFound,
			code:       ErrorCodeResourceNotFound,
			message:    "Resource not found",
			err:        errortypes.NotFoundError("memory", "m1"),
			wantDetail: "unknown memory: m1",
			wantFields: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			writeErrorResponse(w, logger.Discard(), tt.status, tt.code, tt.message, tt.err)

			if w.Code != tt.status {
				t.Errorf("writeErrorResponse() status = %v, want %v", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp.Status != "error" || resp.Code != tt.code || resp.Message != tt.message {
				t.Errorf("unexpected response %+v", resp)
			}
			if resp.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", resp.Detail, tt.wantDetail)
			}
			if (resp.Fields != nil) != tt.wantFields {
				t.Errorf("Fields = %v, wantFields %v", resp.Fields, tt.wantFields)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "validation error",
			err:        errortypes.ValidationError(errors.New("invalid input"), "validation failed"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not found error",
			err:        errortypes.NotFoundError("memory", "m1"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "config error",
			err:        errortypes.ConfigError(errors.New("bad key"), "auth"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "transport error",
			err:        errortypes.TransportError(errors.New("timeout"), "network error"),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unknown error",
			err:        errors.New("generic error"),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "error with status",
			err:        NewErrorWithStatus(errors.New("gone"), http.StatusGone, "GONE", "Resource gone"),
			wantStatus: http.StatusGone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			HandleError(w, logger.Discard(), tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleError() status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestErrorWithStatus(t *testing.T) {
	baseErr := errors.New("base error")
	statusErr := NewErrorWithStatus(baseErr, http.StatusBadRequest, "TEST_ERROR", "Test error message")

	if got, want := statusErr.Error(), "Test error message: base error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if statusErr.StatusCode() != http.StatusBadRequest {
		t.Errorf("StatusCode() = %d, want %d", statusErr.StatusCode(), http.StatusBadRequest)
	}
	if statusErr.ErrorCode() != "TEST_ERROR" {
		t.Errorf("ErrorCode() = %s, want TEST_ERROR", statusErr.ErrorCode())
	}
	if statusErr.Message() != "Test error message" {
		t.Errorf("Message() = %s, want Test error message", statusErr.Message())
	}
	if !errors.Is(statusErr, baseErr) {
		t.Errorf("errors.Is should find the base error")
	}
}

package errortypes

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetType(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  *AppError
		want ErrorType
		is   func(error) bool
	}{
		{"validation", ValidationError(base, "bad input"), ErrorTypeValidation, IsValidationError},
		{"config", ConfigError(base, "no key"), ErrorTypeConfig, IsConfigError},
		{"transport", TransportError(base, "dial failed"), ErrorTypeTransport, IsTransportError},
		{"remote", RemoteServiceError(502, "bad gateway"), ErrorTypeRemote, IsRemoteServiceError},
		{"not found", NotFoundError("prompt", "nope"), ErrorTypeNotFound, IsNotFoundError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Type)
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(fmt.Errorf("wrapped: %w", tt.err)))
			assert.NotEmpty(t, tt.err.StackInfo)
		})
	}
}

func TestAppErrorMessage(t *testing.T) {
	err := TransportError(errors.New("connection refused"), "request to memphora API failed")
	assert.Equal(t, "request to memphora API failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, err.Err))
}

func TestRemoteServiceErrorCarriesStatusAndBody(t *testing.T) {
	err := RemoteServiceError(401, "{\"detail\":\n \"invalid key\"}")

	code, ok := StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, 401, code)
	assert.Equal(t, `memphora API returned status 401: {"detail": "invalid key"}`, err.Error())
	assert.Equal(t, 401, err.Fields["status_code"])

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "{\"detail\":\n \"invalid key\"}", statusErr.Body)
}

func TestRemoteServiceErrorTruncatesLongBody(t *testing.T) {
	err := RemoteServiceError(500, strings.Repeat("x", 2000))
	assert.Less(t, len(err.Error()), 600)
	assert.True(t, strings.HasSuffix(err.Error(), "..."))
}

func TestRemoteServiceErrorTruncatesOnRuneBoundary(t *testing.T) {
	// the 512th byte falls in the middle of a two-byte rune
	err := RemoteServiceError(502, "x"+strings.Repeat("é", 600))

	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "é..."))
}

func TestStatusCodeOnOtherErrors(t *testing.T) {
	_, ok := StatusCode(errors.New("plain"))
	assert.False(t, ok)
	_, ok = StatusCode(TransportError(errors.New("x"), "y"))
	assert.False(t, ok)
}

func TestNotFoundErrorNamesEntity(t *testing.T) {
	err := NotFoundError("prompt", "summarize_day")
	assert.Equal(t, "unknown prompt: summarize_day", err.Error())
}

func TestWithFields(t *testing.T) {
	err := ValidationError(nil, "missing").WithFields(map[string]interface{}{"a": 1, "b": "two"})
	assert.Equal(t, 1, err.Fields["a"])
	assert.Equal(t, "two", err.Fields["b"])
	assert.Equal(t, "missing: unknown error", err.Error())
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogError(logger, RemoteServiceError(503, "down").WithField("endpoint", "/memories"))
	out := buf.String()
	assert.Contains(t, out, "type=remote")
	assert.Contains(t, out, "status_code=503")
	assert.Contains(t, out, "endpoint=/memories")

	buf.Reset()
	LogError(logger, errors.New("plain failure"))
	assert.Contains(t, buf.String(), "plain failure")
}

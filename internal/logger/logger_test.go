package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer

	l := New(&Config{
		Level:       slog.LevelDebug,
		Format:      TEXT,
		Output:      &buf,
		DefaultTags: map[string]interface{}{"test": true},
	})

	l.Debug("This is a debug message")
	assert.Contains(t, buf.String(), "This is a debug message")

	buf.Reset()
	l.Info("This is an info message", "tool", "memphora_search")
	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "This is an info message")
	assert.Contains(t, buf.String(), "tool=memphora_search")
	assert.Contains(t, buf.String(), "test=true")

	buf.Reset()
	Named(l, "client").Warn("This is a warning")
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "component=client")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer

	l := New(&Config{
		Level:  slog.LevelInfo,
		Format: JSON,
		Output: &buf,
	})

	l.Info("JSON message", "count", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "JSON message", entry["msg"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer

	l := New(&Config{
		Level:  slog.LevelInfo,
		Format: TEXT,
		Output: &buf,
	})

	l.Debug("Should not appear")
	assert.Zero(t, buf.Len(), "debug output leaked at info level: %s", buf.String())

	l.Info("Should appear")
	assert.True(t, strings.Contains(buf.String(), "Should appear"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, JSON, ParseFormat("JSON"))
	assert.Equal(t, TEXT, ParseFormat("text"))
	assert.Equal(t, TEXT, ParseFormat(""))
}

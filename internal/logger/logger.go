// Package logger builds the structured slog loggers used by memphora-mcp.
//
// Output always goes to stderr by default: in stdio mode stdout carries the
// MCP protocol stream and must not receive log lines.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// LogFormat defines how log messages are formatted
type LogFormat int

// Log format constants
const (
	TEXT LogFormat = iota
	JSON
)

// Config holds configuration options for the logger
type Config struct {
	Level        slog.Level
	Format       LogFormat
	Output       io.Writer
	ReportCaller bool
	DefaultTags  map[string]interface{}
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:       slog.LevelInfo,
		Format:      TEXT,
		Output:      os.Stderr,
		DefaultTags: map[string]interface{}{"service": "memphora-mcp"},
	}
}

// New creates a new logger with the given configuration. Text output is
// rendered by charmbracelet/log, JSON output by slog's JSON handler.
func New(config *Config) *slog.Logger {
	if config == nil {
		config = DefaultConfig()
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	switch config.Format {
	case JSON:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:     config.Level,
			AddSource: config.ReportCaller,
		})
	default:
		handler = charmlog.NewWithOptions(out, charmlog.Options{
			Level:           charmlog.Level(config.Level),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			ReportCaller:    config.ReportCaller,
		})
	}

	l := slog.New(handler)
	for k, v := range config.DefaultTags {
		l = l.With(k, v)
	}
	return l
}

// Named returns a logger tagged with a component name.
func Named(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", component)
}

// ParseLevel converts a string level to a slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat converts a string format ("text", "json") to a LogFormat.
func ParseFormat(format string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return JSON
	}
	return TEXT
}

// SetDefaultLogger installs l as the process-wide slog default.
func SetDefaultLogger(l *slog.Logger) {
	slog.SetDefault(l)
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

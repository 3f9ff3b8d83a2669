// Package config loads the memphora-mcp configuration from defaults, an
// optional JSON file and MEMPHORA_* environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localrivet/configurator"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/memphora"
)

// Config represents the memphora-mcp configuration
type Config struct {
	// API configures the remote Memphora service.
	API struct {
		// Key is the bearer token for the Memphora API.
		Key string `json:"key" env:"API_KEY"`

		// URL is the service root; /api/v1 is appended when missing.
		URL string `json:"url" env:"API_URL"`

		// UserID scopes memories when a call names no user.
		UserID string `json:"user_id" env:"USER_ID"`

		// TimeoutSeconds bounds every API call.
		TimeoutSeconds int `json:"timeout_seconds" env:"TIMEOUT_SECONDS" validate:"min:1"`
	} `json:"api"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`
	} `json:"logging"`

	// DevServer configures the local stand-in API.
	DevServer struct {
		Addr       string `json:"addr" env:"DEVSERVER_ADDR"`
		SQLitePath string `json:"sqlite_path" env:"DEVSERVER_SQLITE_PATH" validate:"required"`
		APIKey     string `json:"api_key" env:"DEVSERVER_API_KEY"`
	} `json:"devserver"`

	configPath     string
	mutex          sync.RWMutex
	lastModifiedAt time.Time
}

// Default configuration values
const (
	DefaultConfigFilename = ".memphoraconfig"
	DefaultEnvPrefix      = "MEMPHORA"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultDevServerAddr  = "127.0.0.1:8765"
	DefaultSQLitePath     = ".memphora-dev.db"
)

// NewConfig creates a new Config instance with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.API.URL = memphora.DefaultAPIURL
	cfg.API.UserID = memphora.DefaultUserID
	cfg.API.TimeoutSeconds = int(memphora.DefaultTimeout / time.Second)
	cfg.Logging.Level = DefaultLogLevel
	cfg.Logging.Format = DefaultLogFormat
	cfg.DevServer.Addr = DefaultDevServerAddr
	cfg.DevServer.SQLitePath = DefaultSQLitePath
	return cfg
}

// Timeout returns the API timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// LoadConfig loads the configuration using the default file name.
func LoadConfig(logger *slog.Logger) (*Config, error) {
	return LoadConfigWithPath(DefaultConfigFilename, logger)
}

// LoadConfigWithPath loads defaults, then the file at configPath when it
// exists, then MEMPHORA_* environment variables. Later sources win. The
// logger must not write to stdout, which carries the MCP protocol.
func LoadConfigWithPath(configPath string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	cfg := NewConfig()

	if configPath == "" {
		configPath = DefaultConfigFilename
	}
	if configPath == DefaultConfigFilename {
		if found, err := configurator.FindConfigFile(configPath); err == nil {
			configPath = found
			logger.Debug("Found config file", "path", found)
		}
	}

	loader := configurator.New(logger).
		WithProvider(configurator.NewDefaultProvider())

	if _, err := os.Stat(configPath); err == nil {
		logger.Info("Loading configuration", "path", configPath)
		loader = loader.WithProvider(configurator.NewFileProvider(configPath))
	} else {
		logger.Debug("Config file not found, using defaults and environment", "path", configPath)
	}

	loader = loader.
		WithProvider(configurator.NewEnvProvider(DefaultEnvPrefix)).
		WithValidator(configurator.NewDefaultValidator())

	if err := loader.Load(context.Background(), cfg); err != nil {
		return nil, errortypes.ConfigError(err, "failed to load configuration")
	}

	cfg.configPath = configPath
	cfg.lastModifiedAt = time.Now()
	return cfg, nil
}

// SaveToFile saves the configuration to the specified file
func (c *Config) SaveToFile(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := configurator.SaveToFile(c, path, configurator.FormatJSON); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	c.configPath = path
	c.lastModifiedAt = time.Now()
	return nil
}

// GetConfigPath returns the path of the configuration file that was used
// or searched for.
func (c *Config) GetConfigPath() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.configPath
}

// LastModified returns when the configuration was last loaded or saved.
func (c *Config) LastModified() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastModifiedAt
}

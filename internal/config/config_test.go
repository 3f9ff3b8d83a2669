package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memphora/memphora-mcp/internal/logger"
	"github.com/memphora/memphora-mcp/internal/memphora"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Empty(t, cfg.API.Key)
	assert.Equal(t, memphora.DefaultAPIURL, cfg.API.URL)
	assert.Equal(t, memphora.DefaultUserID, cfg.API.UserID)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultDevServerAddr, cfg.DevServer.Addr)
	assert.Equal(t, DefaultSQLitePath, cfg.DevServer.SQLitePath)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	cfg, err := LoadConfigWithPath(path, logger.Discard())

	require.NoError(t, err)
	assert.Equal(t, path, cfg.GetConfigPath())
	assert.Equal(t, memphora.DefaultUserID, cfg.API.UserID)
	assert.False(t, cfg.LastModified().IsZero())
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memphora.json")

	cfg := NewConfig()
	cfg.API.Key = "file_key"
	cfg.API.UserID = "alice"
	cfg.Logging.Level = "debug"
	require.NoError(t, cfg.SaveToFile(path))
	assert.Equal(t, path, cfg.GetConfigPath())

	loaded, err := LoadConfigWithPath(path, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "file_key", loaded.API.Key)
	assert.Equal(t, "alice", loaded.API.UserID)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

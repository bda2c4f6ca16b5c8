package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROVIO_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, 2*365*24*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, 256, cfg.Audit.QueueSize)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.NATS.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PROVIO_CONFIG_DIR", t.TempDir())
	t.Setenv("PROVIO_SERVER_PORT", "9999")
	t.Setenv("PROVIO_LOGGING_LEVEL", "debug")
	t.Setenv("PROVIO_RATELIMIT_REQUESTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 7070
database:
  type: memory
crypto:
  fallback_secret: file-secret
audit:
  retention: 720h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	t.Setenv("PROVIO_CONFIG_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "file-secret", cfg.Crypto.FallbackSecret)
	assert.Equal(t, 720*time.Hour, cfg.Audit.Retention)
	// Untouched keys keep their defaults.
	assert.Equal(t, "json", cfg.Logging.Format)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "vault", cfg.DataDir)
	assert.Equal(t, "dropbox", cfg.WatchDir)
	assert.Equal(t, filepath.Join("vault", "mechvault.db"), cfg.DBPath)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MECHVAULT_WATCH_DIR", "/srv/dropbox")
	t.Setenv("MECHVAULT_WORKERS", "8")
	t.Setenv("MECHVAULT_EXTRACT_MAX_ATTEMPTS", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/dropbox", cfg.WatchDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5, cfg.Extract.MaxAttempts)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mechvault.yaml")
	content := `
data_dir: /srv/vault
debounce: 1s
extract:
  workers: 3
log:
  level: debug
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/vault", cfg.DataDir)
	assert.Equal(t, filepath.Join("/srv/vault", "mechvault.db"), cfg.DBPath)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.Equal(t, 3, cfg.Extract.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ClampsInvalidCounts(t *testing.T) {
	t.Setenv("MECHVAULT_WORKERS", "0")
	t.Setenv("MECHVAULT_QUEUE_SIZE", "-1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 1, cfg.QueueSize)
}

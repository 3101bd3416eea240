package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: \"host=localhost\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, time.Minute, cfg.Protocol.MinConfirmationGap)
	assert.Equal(t, 5*time.Second, cfg.Protocol.TimerPollInterval)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "htn:changes", cfg.ChangeFeed.Redis.Stream)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: sqlite
  dsn: ":memory:"
protocol:
  min_confirmation_gap_seconds: 120
  timer_poll_seconds: 2
changefeed:
  backend: redis
  redis:
    addr: "localhost:6379"
    stream: "ward:changes"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Protocol.MinConfirmationGap)
	assert.Equal(t, 2*time.Second, cfg.Protocol.TimerPollInterval)
	assert.Equal(t, "redis", cfg.ChangeFeed.Backend)
	assert.Equal(t, "ward:changes", cfg.ChangeFeed.Redis.Stream)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

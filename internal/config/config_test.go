package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/typeroom/internal/testutil"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName+".yaml"), []byte(body), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(testutil.NopLogger(), DefaultFileName)
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Realtime.OpTimeout)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, `
server:
  port: 9090
storage:
  type: redis
redis:
  url: redis://cache:6379/2
  room_ttl: 2h
realtime:
  send_buffer: 16
  progress_rate: 5.5
log:
  level: debug
`)

	cfg, err := Load(testutil.NopLogger(), DefaultFileName)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, 2*time.Hour, cfg.Redis.RoomTTL)
	assert.Equal(t, 16, cfg.Realtime.SendBuffer)
	assert.InDelta(t, 5.5, cfg.Realtime.ProgressRate, 0.0001)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, Default().Mongo, cfg.Mongo)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "storage:\n  type: redis\n")

	t.Setenv("TYPEROOM_STORAGE_TYPE", "postgres")
	t.Setenv("TYPEROOM_POSTGRES_URL", "postgres://u:p@db:5432/rooms")
	t.Setenv("TYPEROOM_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("TYPEROOM_REALTIME_OP_TIMEOUT", "750ms")
	t.Setenv("TYPEROOM_SERVER_PORT", "7000")

	cfg, err := Load(testutil.NopLogger(), DefaultFileName)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://u:p@db:5432/rooms", cfg.Postgres.URL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 750*time.Millisecond, cfg.Realtime.OpTimeout)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TYPEROOM_LOG_LEVEL", "loud")

	_, err := Load(testutil.NopLogger(), DefaultFileName)
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "server: [unterminated\n")

	_, err := Load(testutil.NopLogger(), DefaultFileName)
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "warn"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, "WARN", level.String())
}

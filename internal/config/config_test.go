package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":5555", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Equal(t, "admin", cfg.Ops.User)
	assert.Empty(t, cfg.Ops.Password)
	assert.False(t, cfg.WS.Enabled)
	assert.Equal(t, uint32(72<<20), cfg.MaxFrameSize)
	assert.Equal(t, 8, cfg.DBWorkers)
	assert.Equal(t, "disk", cfg.Blob.Backend)
	assert.Equal(t, 5*time.Second, cfg.Client.ReconnectInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Client.VideoInterval)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	writeFile(t, path, `
mode: debug
listen_addr: ":7000"
max_frame_size: 0
blob:
  backend: s3
  s3:
    bucket: attachments
ws:
  enabled: true
  origins: ["https://chat.example.com"]
client:
  reconnect_interval: 2s
`)
	t.Setenv("ROOMCAST_HTTP_ADDR", ":9090")
	t.Setenv("ROOMCAST_BLOB_S3_REGION", "eu-west-1")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Zero(t, cfg.MaxFrameSize)
	assert.Equal(t, "s3", cfg.Blob.Backend)
	assert.Equal(t, "attachments", cfg.Blob.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Blob.S3.Region)
	assert.Equal(t, 2*time.Second, cfg.Client.ReconnectInterval)
	assert.True(t, cfg.WS.Enabled)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.WS.Origins)
}

func TestUnknownBlobBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "blob:\n  backend: tape\n")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "log_level: info\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	var level atomic.Value
	cfg.Watch(func(next *Config) { level.Store(next.LogLevel) })
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "log_level: debug\n")

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestApplyLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	require.NoError(t, ApplyLogLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	require.NoError(t, ApplyLogLevel(""))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	assert.Error(t, ApplyLogLevel("loud"))
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644)
	require.NoError(t, err)
}

func TestInitialize(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Initialize(context.Background(), t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, DefaultServerURL, cfg.Server.URL)
		assert.Equal(t, DefaultWriteTimeout, cfg.Server.WriteTimeout)
		assert.True(t, cfg.Reconnect.Enabled)
		assert.Equal(t, DefaultReconnectInterval, cfg.Reconnect.Interval)
		assert.Equal(t, DefaultMaxReconnectAttempts, cfg.Reconnect.MaxAttempts)
		assert.NotEmpty(t, cfg.Storage.Dir)
		assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	})

	t.Run("full file overrides everything", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, `
server:
  url: wss://agent.example.com/ws
  write_timeout: 5s
reconnect:
  enabled: false
  interval: 1500ms
  max_attempts: 2
storage:
  dir: /var/lib/chatstream
logging:
  level: debug
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)

		assert.Equal(t, "wss://agent.example.com/ws", cfg.Server.URL)
		assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
		assert.False(t, cfg.Reconnect.Enabled)
		assert.Equal(t, 1500*time.Millisecond, cfg.Reconnect.Interval)
		assert.Equal(t, 2, cfg.Reconnect.MaxAttempts)
		assert.Equal(t, "/var/lib/chatstream", cfg.Storage.Dir)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("partial file keeps defaults for unset fields", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, `
server:
  url: ws://127.0.0.1:9000/ws
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)

		assert.Equal(t, "ws://127.0.0.1:9000/ws", cfg.Server.URL)
		assert.Equal(t, DefaultWriteTimeout, cfg.Server.WriteTimeout)
		assert.Equal(t, DefaultReconnectInterval, cfg.Reconnect.Interval)
		assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	})

	t.Run("environment variables expand in values", func(t *testing.T) {
		t.Setenv("CHATSTREAM_TEST_URL", "ws://envhost:7777/ws")
		dir := t.TempDir()
		writeConfigFile(t, dir, `
server:
  url: "{{.CHATSTREAM_TEST_URL}}"
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, "ws://envhost:7777/ws", cfg.Server.URL)
	})

	t.Run("invalid duration falls back to default", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, `
reconnect:
  interval: not-a-duration
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, DefaultReconnectInterval, cfg.Reconnect.Interval)
	})

	t.Run("invalid YAML fails loading", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "server: [unclosed")

		_, err := Initialize(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidYAML)
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, `
server:
  url: http://not-a-websocket/ws
`)

		_, err := Initialize(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidationFailed)
	})
}

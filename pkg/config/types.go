package config

import (
	"log/slog"
	"time"
)

// Config is the fully resolved application configuration. Build one
// through Initialize rather than constructing it by hand.
type Config struct {
	Server    *ServerConfig
	Reconnect *ReconnectConfig
	Storage   *StorageConfig
	Logging   *LoggingConfig
}

// ServerConfig describes the agent backend endpoint.
type ServerConfig struct {
	// URL is the WebSocket endpoint of the agent backend (ws:// or wss://).
	URL string

	// WriteTimeout bounds outbound frame writes.
	WriteTimeout time.Duration
}

// ReconnectConfig controls automatic reconnection after an unexpected
// connection loss. Reconnection uses a fixed interval between attempts.
type ReconnectConfig struct {
	Enabled     bool
	Interval    time.Duration
	MaxAttempts int
}

// StorageConfig describes where conversations are persisted.
type StorageConfig struct {
	// Dir is the directory holding the conversation database. Created
	// on first use if missing.
	Dir string `yaml:"dir"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level string to a slog.Level,
// defaulting to info for unrecognized values.
func (l *LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values applied when fields are omitted from chatstream.yaml.
const (
	DefaultServerURL            = "ws://localhost:8080/ws"
	DefaultWriteTimeout         = 10 * time.Second
	DefaultReconnectInterval    = 3000 * time.Millisecond
	DefaultMaxReconnectAttempts = 5
	DefaultLogLevel             = "info"
)

// defaultStorageDir resolves to ~/.chatstream, falling back to a
// relative directory when the home directory cannot be determined.
func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatstream"
	}
	return filepath.Join(home, ".chatstream")
}

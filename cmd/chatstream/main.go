// Chatstream terminal client — connects to an agent backend over
// WebSocket, folds the event stream into conversation transcripts, and
// persists them locally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/agent-scaffold/chatstream/pkg/client"
	"github.com/agent-scaffold/chatstream/pkg/config"
	"github.com/agent-scaffold/chatstream/pkg/store"
	"github.com/agent-scaffold/chatstream/pkg/version"
	"github.com/agent-scaffold/chatstream/pkg/ws"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to configuration directory")
	serverURL := flag.String("server", "",
		"Agent WebSocket URL (overrides configuration)")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}

	// 2. Configure logging per resolved level
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	})))

	slog.Info("Starting chatstream",
		"version", version.Full(),
		"server_url", cfg.Server.URL,
		"storage_dir", cfg.Storage.Dir)

	// 3. Open the conversation store
	st, err := store.Open(ctx, cfg.Storage.Dir)
	if err != nil {
		slog.Error("Failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing conversation store", "error", err)
		}
	}()

	// 4. Build the REPL and session client
	repl := newREPL(os.Stdin, os.Stdout)
	c := client.New(cfg, st, client.Callbacks{
		OnUpdate: repl.onUpdate,
		OnConnection: func(connected bool) {
			if connected {
				repl.printf("[connected to %s]\n", cfg.Server.URL)
			} else {
				repl.printf("[disconnected]\n")
			}
		},
		OnError: func(err error) {
			if errors.Is(err, ws.ErrReconnectExhausted) {
				repl.printf("[disconnected, giving up — use /connect to retry]\n")
				return
			}
			slog.Warn("Connection error", "error", err)
		},
	})
	repl.client = c

	// 5. Connect (reconnect loop takes over on failure)
	c.Connect(ctx)
	defer c.Disconnect()

	// 6. Run the REPL until EOF or shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		repl.run(ctx)
		close(done)
	}()

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case <-done:
	}

	fmt.Println("bye")
}

// Package e2e exercises the full client pipeline against a scripted
// stub agent: connection manager → parser → reducer → store.
package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agent-scaffold/chatstream/pkg/client"
	"github.com/agent-scaffold/chatstream/pkg/config"
	"github.com/agent-scaffold/chatstream/pkg/store"
	"github.com/agent-scaffold/chatstream/pkg/stubagent"
)

// TestApp boots a stub agent plus a fully wired client for e2e testing.
type TestApp struct {
	Responder *stubagent.ScriptedResponder
	Store     *store.Store
	Client    *client.Client

	WSURL      string
	StorageDir string

	mu      sync.Mutex
	errors  []error
	updates int

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	storageDir string
	reconnect  *config.ReconnectConfig
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithStorageDir reuses an existing storage directory, for restart tests.
func WithStorageDir(dir string) TestAppOption {
	return func(c *testAppConfig) { c.storageDir = dir }
}

// WithReconnect overrides the reconnect policy.
func WithReconnect(rc *config.ReconnectConfig) TestAppOption {
	return func(c *testAppConfig) { c.reconnect = rc }
}

// StartTestApp starts the stub agent and connects a client to it.
func StartTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	appCfg := &testAppConfig{
		storageDir: t.TempDir(),
		reconnect:  &config.ReconnectConfig{Enabled: false, Interval: time.Second, MaxAttempts: 5},
	}
	for _, opt := range opts {
		opt(appCfg)
	}

	responder := stubagent.NewScriptedResponder()
	srv := httptest.NewServer(stubagent.New(responder).Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/ws"

	st, err := store.Open(context.Background(), appCfg.storageDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	app := &TestApp{
		Responder:  responder,
		Store:      st,
		WSURL:      wsURL,
		StorageDir: appCfg.storageDir,
		t:          t,
	}

	cfg := &config.Config{
		Server:    &config.ServerConfig{URL: wsURL, WriteTimeout: 5 * time.Second},
		Reconnect: appCfg.reconnect,
		Storage:   &config.StorageConfig{Dir: appCfg.storageDir},
		Logging:   &config.LoggingConfig{Level: "info"},
	}

	app.Client = client.New(cfg, st, client.Callbacks{
		OnUpdate: func() {
			app.mu.Lock()
			app.updates++
			app.mu.Unlock()
		},
		OnError: func(err error) {
			app.mu.Lock()
			app.errors = append(app.errors, err)
			app.mu.Unlock()
		},
	})
	t.Cleanup(app.Client.Disconnect)

	return app
}

// Connect opens the client connection and requires success.
func (a *TestApp) Connect() {
	a.t.Helper()
	a.Client.Connect(context.Background())
	require.True(a.t, a.Client.Connected(), "client should connect to stub agent")
}

// Errors returns a snapshot of transport errors seen so far.
func (a *TestApp) Errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]error(nil), a.errors...)
}

// WaitIdle polls until the selected transcript has stopped processing
// and reached the expected message count.
func (a *TestApp) WaitIdle(messageCount int) {
	a.t.Helper()
	require.Eventually(a.t, func() bool {
		conv := a.Store.Selected()
		if conv == nil {
			return false
		}
		return len(conv.Transcript.Messages) == messageCount && !conv.Transcript.Processing()
	}, 3*time.Second, 10*time.Millisecond)
}

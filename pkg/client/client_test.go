package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-scaffold/chatstream/pkg/approval"
	"github.com/agent-scaffold/chatstream/pkg/config"
	"github.com/agent-scaffold/chatstream/pkg/events"
	"github.com/agent-scaffold/chatstream/pkg/store"
	"github.com/agent-scaffold/chatstream/pkg/transcript"
)

// newScriptedServer starts a WebSocket server that replies to every
// received frame by sending each scripted frame in order.
func newScriptedServer(t *testing.T, script []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx := r.Context()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
			for _, frame := range script {
				if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) *config.Config {
	return &config.Config{
		Server:    &config.ServerConfig{URL: url, WriteTimeout: 5 * time.Second},
		Reconnect: &config.ReconnectConfig{Enabled: false, Interval: time.Second, MaxAttempts: 5},
		Storage:   &config.StorageConfig{Dir: ""},
		Logging:   &config.LoggingConfig{Level: "info"},
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func wsAddr(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestSendMessageGating(t *testing.T) {
	ctx := context.Background()

	t.Run("no selected conversation", func(t *testing.T) {
		st := openTestStore(t)
		c := New(testConfig("ws://127.0.0.1:1/ws"), st, Callbacks{})

		err := c.SendMessage(ctx, "hello")
		assert.ErrorIs(t, err, ErrNoConversation)
	})

	t.Run("disconnected", func(t *testing.T) {
		st := openTestStore(t)
		_, err := st.Create(ctx)
		require.NoError(t, err)

		c := New(testConfig("ws://127.0.0.1:1/ws"), st, Callbacks{})
		err = c.SendMessage(ctx, "hello")
		assert.ErrorIs(t, err, ErrNotConnected)

		// The rejected message is not recorded.
		assert.Empty(t, st.Selected().Transcript.Messages)
	})

	t.Run("awaiting approval freezes input", func(t *testing.T) {
		srv := newScriptedServer(t, nil)
		st := openTestStore(t)
		_, err := st.Create(ctx)
		require.NoError(t, err)

		ev, err := events.Parse([]byte(`{"type":"approval.required","actions":[{"id":"a1","tool_name":"kubectl.delete","args":{}}]}`))
		require.NoError(t, err)
		require.NoError(t, st.ApplyEvent(ctx, ev))
		require.Equal(t, transcript.PhaseAwaitingApproval, st.Selected().Transcript.Phase())

		c := New(testConfig(wsAddr(srv)), st, Callbacks{})
		c.Connect(ctx)
		defer c.Disconnect()

		err = c.SendMessage(ctx, "while frozen")
		assert.ErrorIs(t, err, ErrAwaitingApproval)
	})
}

func TestStreamingRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newScriptedServer(t, []string{
		`{"type":"turn.started","turn_id":"t1"}`,
		`{"type":"stream.chunk","delta":"Hel"}`,
		`{"type":"stream.chunk","delta":"lo"}`,
		`{"type":"final.result"}`,
		`{"type":"processing.complete"}`,
	})

	st := openTestStore(t)
	_, err := st.Create(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	updates := 0
	c := New(testConfig(wsAddr(srv)), st, Callbacks{
		OnUpdate: func() {
			mu.Lock()
			updates++
			mu.Unlock()
		},
	})
	c.Connect(ctx)
	defer c.Disconnect()
	require.True(t, c.Connected())

	require.NoError(t, c.SendMessage(ctx, "say hello"))

	require.Eventually(t, func() bool {
		conv := st.Selected()
		return len(conv.Transcript.Messages) == 2 &&
			!conv.Transcript.Messages[1].Open &&
			!conv.Transcript.Processing()
	}, 2*time.Second, 10*time.Millisecond)

	conv := st.Selected()
	assert.Equal(t, transcript.RoleUser, conv.Transcript.Messages[0].Role)
	assert.Equal(t, "say hello", conv.Transcript.Messages[0].Content)
	assert.Equal(t, transcript.RoleAssistant, conv.Transcript.Messages[1].Role)
	assert.Equal(t, "Hello", conv.Transcript.Messages[1].Content)
	assert.Equal(t, "say hello", conv.Title)

	mu.Lock()
	assert.Greater(t, updates, 0)
	mu.Unlock()
}

func TestMalformedFrameDiscarded(t *testing.T) {
	ctx := context.Background()
	srv := newScriptedServer(t, []string{
		`{"type":"turn.started"}`,
		`{not json`,
		`{"type":"celebration.confetti"}`, // unknown type, ignored
		`{"type":"stream.chunk","delta":"still here"}`,
		`{"type":"final.result"}`,
	})

	st := openTestStore(t)
	_, err := st.Create(ctx)
	require.NoError(t, err)

	c := New(testConfig(wsAddr(srv)), st, Callbacks{})
	c.Connect(ctx)
	defer c.Disconnect()

	require.NoError(t, c.SendMessage(ctx, "go"))

	require.Eventually(t, func() bool {
		msgs := st.Selected().Transcript.Messages
		return len(msgs) == 2 && !msgs[1].Open
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "still here", st.Selected().Transcript.Messages[1].Content)
	assert.True(t, c.Connected(), "a corrupt frame must not tear down the connection")
}

func TestSubmitDecisions(t *testing.T) {
	ctx := context.Background()

	pendingApproval := func(t *testing.T, st *store.Store) {
		t.Helper()
		ev, err := events.Parse([]byte(`{"type":"approval.required","actions":[` +
			`{"id":"a1","tool_name":"kubectl.delete","args":{"pod":"web-1"}},` +
			`{"id":"a2","tool_name":"kubectl.scale","args":{"replicas":3}}],` +
			`"policies":[{"editable":false},{"editable":true}]}`))
		require.NoError(t, err)
		require.NoError(t, st.ApplyEvent(ctx, ev))
	}

	t.Run("no pending approval", func(t *testing.T) {
		st := openTestStore(t)
		_, err := st.Create(ctx)
		require.NoError(t, err)

		c := New(testConfig("ws://127.0.0.1:1/ws"), st, Callbacks{})
		err = c.SubmitDecisions(ctx, nil)
		assert.ErrorIs(t, err, ErrNoPendingApproval)
	})

	t.Run("clears pending even while disconnected", func(t *testing.T) {
		st := openTestStore(t)
		_, err := st.Create(ctx)
		require.NoError(t, err)
		pendingApproval(t, st)

		// Disconnected manager: the resume frame is silently dropped,
		// but the session must unfreeze anyway.
		c := New(testConfig("ws://127.0.0.1:1/ws"), st, Callbacks{})
		err = c.SubmitDecisions(ctx, []approval.Draft{
			{Type: events.DecisionApprove},
			{Type: events.DecisionReject},
		})
		require.NoError(t, err)

		tr := st.Selected().Transcript
		assert.Nil(t, tr.Pending())
		assert.Equal(t, transcript.PhaseIdle, tr.Phase())
		assert.Contains(t, tr.Messages[len(tr.Messages)-1].Content, "1 approved")
	})

	t.Run("resume frame reaches the server", func(t *testing.T) {
		received := make(chan []byte, 8)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
			if err != nil {
				return
			}
			for {
				_, data, err := conn.Read(r.Context())
				if err != nil {
					return
				}
				received <- data
			}
		}))
		t.Cleanup(srv.Close)

		st := openTestStore(t)
		_, err := st.Create(ctx)
		require.NoError(t, err)
		pendingApproval(t, st)

		c := New(testConfig(wsAddr(srv)), st, Callbacks{})
		c.Connect(ctx)
		defer c.Disconnect()

		err = c.SubmitDecisions(ctx, []approval.Draft{
			{Type: events.DecisionApprove},
			{Type: events.DecisionEdit, ReplacementArgs: json.RawMessage(`{"replicas":5}`)},
		})
		require.NoError(t, err)

		select {
		case data := <-received:
			var frame map[string]any
			require.NoError(t, json.Unmarshal(data, &frame))
			assert.Equal(t, "approval.resume", frame["type"])
			decisions, ok := frame["decisions"].([]any)
			require.True(t, ok)
			require.Len(t, decisions, 2)
		case <-time.After(2 * time.Second):
			t.Fatal("resume frame never arrived")
		}
	})
}

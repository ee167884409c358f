package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEchoServer starts a test WebSocket server that echoes every frame
// back and counts accepted connections. closeImmediately makes
// the server drop each connection right after accepting it, simulating
// an unexpectedly dying backend.
func newEchoServer(t *testing.T, closeImmediately bool) (*httptest.Server, *int32) {
	t.Helper()
	var accepted int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		atomic.AddInt32(&accepted, 1)
		if closeImmediately {
			_ = conn.Close(websocket.StatusInternalError, "going away")
			return
		}
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &accepted
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestManagerConnect(t *testing.T) {
	t.Run("connect then send round-trips a frame", func(t *testing.T) {
		srv, _ := newEchoServer(t, false)

		var mu sync.Mutex
		var frames []string
		var states []bool
		m := NewManager(
			Config{URL: wsURL(srv)},
			Callbacks{
				OnFrame: func(data []byte) {
					mu.Lock()
					frames = append(frames, string(data))
					mu.Unlock()
				},
				OnState: func(connected bool) {
					mu.Lock()
					states = append(states, connected)
					mu.Unlock()
				},
			},
		)
		defer m.Disconnect()

		m.Connect(context.Background())
		require.True(t, m.Connected())

		m.Send(map[string]string{"type": "chat.message", "message": "hi"})
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(frames) == 1
		}, 2*time.Second, 10*time.Millisecond)

		mu.Lock()
		assert.Contains(t, frames[0], `"hi"`)
		assert.Equal(t, []bool{true}, states)
		mu.Unlock()
	})

	t.Run("connect is idempotent", func(t *testing.T) {
		srv, accepted := newEchoServer(t, false)
		m := NewManager(Config{URL: wsURL(srv)}, Callbacks{})
		defer m.Disconnect()

		m.Connect(context.Background())
		m.Connect(context.Background())
		m.Connect(context.Background())

		assert.True(t, m.Connected())
		assert.Equal(t, int32(1), atomic.LoadInt32(accepted), "repeat Connect must not open a second connection")
	})

	t.Run("concurrent connects open a single connection", func(t *testing.T) {
		srv, accepted := newEchoServer(t, false)
		m := NewManager(Config{URL: wsURL(srv)}, Callbacks{})
		defer m.Disconnect()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Connect(context.Background())
			}()
		}
		wg.Wait()

		require.Eventually(t, m.Connected, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, int32(1), atomic.LoadInt32(accepted), "racing Connect calls must not open extra connections")
	})

	t.Run("send while disconnected is silently dropped", func(t *testing.T) {
		var errCount atomic.Int32
		m := NewManager(
			Config{URL: "ws://127.0.0.1:1/ws"},
			Callbacks{OnError: func(error) { errCount.Add(1) }},
		)
		m.Send(map[string]string{"message": "into the void"})
		assert.Equal(t, int32(0), errCount.Load(), "dropped send is not an error")
	})

	t.Run("disconnect is safe when not connected", func(t *testing.T) {
		m := NewManager(Config{URL: "ws://127.0.0.1:1/ws"}, Callbacks{})
		m.Disconnect()
		m.Disconnect()
		assert.False(t, m.Connected())
	})
}

func TestManagerReconnect(t *testing.T) {
	t.Run("reconnects after unexpected close", func(t *testing.T) {
		srv, accepted := newEchoServer(t, true)
		m := NewManager(
			Config{
				URL:                  wsURL(srv),
				Reconnect:            true,
				ReconnectInterval:    20 * time.Millisecond,
				MaxReconnectAttempts: 10,
			},
			Callbacks{},
		)
		defer m.Disconnect()

		m.Connect(context.Background())
		require.Eventually(t, func() bool {
			return atomic.LoadInt32(accepted) >= 2
		}, 2*time.Second, 10*time.Millisecond, "a second connection should be attempted")
	})

	t.Run("scenario E: attempts are bounded at the ceiling", func(t *testing.T) {
		// Nothing listens on this port — every dial fails.
		var dialErrors atomic.Int32
		exhausted := make(chan struct{}, 1)
		m := NewManager(
			Config{
				URL:                  "ws://127.0.0.1:1/ws",
				Reconnect:            true,
				ReconnectInterval:    10 * time.Millisecond,
				MaxReconnectAttempts: 5,
			},
			Callbacks{OnError: func(err error) {
				if err == ErrReconnectExhausted {
					select {
					case exhausted <- struct{}{}:
					default:
					}
					return
				}
				dialErrors.Add(1)
			}},
		)
		defer m.Disconnect()

		m.Connect(context.Background())

		select {
		case <-exhausted:
		case <-time.After(3 * time.Second):
			t.Fatal("reconnect loop never gave up")
		}

		// Initial dial + 5 scheduled attempts, then nothing further.
		assert.Equal(t, int32(6), dialErrors.Load())
		assert.False(t, m.Connected())

		time.Sleep(50 * time.Millisecond) // would be enough for several more attempts
		assert.Equal(t, int32(6), dialErrors.Load(), "no attempts beyond the ceiling")
	})

	t.Run("reconnect disabled means a drop stays dropped", func(t *testing.T) {
		srv, accepted := newEchoServer(t, true)
		m := NewManager(Config{URL: wsURL(srv), Reconnect: false}, Callbacks{})
		defer m.Disconnect()

		m.Connect(context.Background())
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, int32(1), atomic.LoadInt32(accepted))
		assert.False(t, m.Connected())
	})

	t.Run("disconnect cancels a pending reconnect timer", func(t *testing.T) {
		var dialErrors atomic.Int32
		m := NewManager(
			Config{
				URL:                  "ws://127.0.0.1:1/ws",
				Reconnect:            true,
				ReconnectInterval:    50 * time.Millisecond,
				MaxReconnectAttempts: 5,
			},
			Callbacks{OnError: func(err error) {
				if err != ErrReconnectExhausted {
					dialErrors.Add(1)
				}
			}},
		)

		m.Connect(context.Background())
		require.Eventually(t, func() bool {
			return dialErrors.Load() >= 1
		}, 2*time.Second, 5*time.Millisecond)

		m.Disconnect() // cancels the armed timer
		before := dialErrors.Load()
		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, before, dialErrors.Load(), "no dial after Disconnect")
	})

	t.Run("successful connect resets the attempt counter", func(t *testing.T) {
		srv, accepted := newEchoServer(t, false)
		m := NewManager(
			Config{
				URL:                  wsURL(srv),
				Reconnect:            true,
				ReconnectInterval:    10 * time.Millisecond,
				MaxReconnectAttempts: 3,
			},
			Callbacks{},
		)
		defer m.Disconnect()

		m.Connect(context.Background())
		require.True(t, m.Connected())
		require.Equal(t, int32(1), atomic.LoadInt32(accepted))

		m.mu.Lock()
		attempts := m.attempts
		m.mu.Unlock()
		assert.Zero(t, attempts)
	})
}

// Package ws owns the single logical WebSocket connection to the agent
// backend: dialing, bounded fixed-interval reconnection, and best-effort
// sends.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Defaults for the reconnection policy. Fixed interval, no exponential
// backoff, no jitter — a documented limitation of the protocol this
// client preserves, not an oversight.
const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultWriteTimeout         = 10 * time.Second
	dialTimeout                 = 10 * time.Second
)

// ErrReconnectExhausted is reported through the error callback when the
// reconnection ceiling is reached. Recovery from here requires an
// explicit Connect call.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Config holds connection parameters.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:8080/ws".
	URL string

	// Reconnect enables automatic reconnection after an unexpected close.
	Reconnect bool

	// ReconnectInterval is the fixed delay between attempts.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds consecutive failed attempts. The
	// counter resets on every successful connect.
	MaxReconnectAttempts int

	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Callbacks are invoked from the manager's goroutines, never while the
// manager's lock is held. All fields are optional.
type Callbacks struct {
	// OnFrame receives each raw inbound frame.
	OnFrame func(data []byte)

	// OnState receives connected-flag transitions. Downstream components
	// read this to gate user interaction.
	OnState func(connected bool)

	// OnError receives transport errors, including ErrReconnectExhausted.
	// Errors are never returned synchronously from Connect.
	OnError func(err error)
}

// Manager maintains at most one live connection per logical session.
type Manager struct {
	cfg       Config
	callbacks Callbacks

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	dialing        bool // a Connect call owns the dial slot
	closing        bool // intentional disconnect in progress
	attempts       int  // consecutive failed attempts since last success
	reconnectTimer *time.Timer
	readCancel     context.CancelFunc
}

// NewManager creates a disconnected Manager.
func NewManager(cfg Config, callbacks Callbacks) *Manager {
	return &Manager{cfg: cfg.withDefaults(), callbacks: callbacks}
}

// Connected reports whether a live connection exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Connect establishes the connection. Idempotent: a no-op when already
// connected or while another Connect is mid-dial, so the reconnect
// timer and a user-initiated call can never produce two live
// connections. Dial failures are reported through OnError and feed the
// same bounded reconnect loop as an unexpected close — nothing is
// returned synchronously.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.connected || m.dialing {
		m.mu.Unlock()
		return
	}
	m.dialing = true
	m.closing = false
	m.stopReconnectTimerLocked()
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, m.cfg.URL, nil)
	cancel()
	if err != nil {
		slog.Warn("WebSocket dial failed", "url", m.cfg.URL, "error", err)
		m.reportError(fmt.Errorf("dial %s: %w", m.cfg.URL, err))
		m.mu.Lock()
		m.dialing = false
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	readCtx, readCancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.dialing = false
	if m.closing || m.connected {
		// Disconnect (or another connection) won the race — drop the
		// fresh connection rather than leak a second read loop.
		m.mu.Unlock()
		readCancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	m.conn = conn
	m.connected = true
	m.attempts = 0
	m.readCancel = readCancel
	m.mu.Unlock()

	slog.Info("WebSocket connected", "url", m.cfg.URL)
	m.reportState(true)

	go m.readLoop(readCtx, conn)
}

// Disconnect closes the connection and cancels any pending reconnect
// timer. Always safe to call, including when not connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	m.stopReconnectTimerLocked()
	conn := m.conn
	wasConnected := m.connected
	m.conn = nil
	m.connected = false
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if wasConnected {
		m.reportState(false)
	}
}

// Send marshals payload and transmits it. When not connected the send is
// silently dropped — this is a best-effort channel with no queuing or
// backpressure; reliability belongs to the layers above.
func (m *Manager) Send(payload any) {
	m.mu.Lock()
	conn := m.conn
	connected := m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		slog.Debug("Dropping send while disconnected")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		m.reportError(fmt.Errorf("marshal outbound frame: %w", err))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("WebSocket write failed", "error", err)
		m.reportError(fmt.Errorf("write frame: %w", err))
	}
}

// readLoop delivers inbound frames until the connection closes, then
// routes the close into the reconnect path.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			m.handleClosed(err)
			return
		}
		if m.callbacks.OnFrame != nil {
			m.callbacks.OnFrame(data)
		}
	}
}

// handleClosed transitions to disconnected and, for unexpected closes,
// schedules a bounded reconnect.
func (m *Manager) handleClosed(cause error) {
	m.mu.Lock()
	intentional := m.closing
	wasConnected := m.connected
	m.conn = nil
	m.connected = false
	m.readCancel = nil
	if !intentional {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	if intentional {
		return
	}
	slog.Warn("WebSocket connection lost", "error", cause)
	if wasConnected {
		m.reportState(false)
	}
	m.reportError(fmt.Errorf("connection lost: %w", cause))
}

// scheduleReconnectLocked arms the reconnect timer, respecting the
// attempt ceiling. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if !m.cfg.Reconnect || m.closing {
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		slog.Error("Giving up on reconnection",
			"attempts", m.attempts, "max", m.cfg.MaxReconnectAttempts)
		go m.reportError(ErrReconnectExhausted)
		return
	}
	m.attempts++
	attempt := m.attempts
	slog.Info("Scheduling reconnect",
		"attempt", attempt, "max", m.cfg.MaxReconnectAttempts, "interval", m.cfg.ReconnectInterval)
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectInterval, func() {
		m.Connect(context.Background())
	})
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) reportState(connected bool) {
	if m.callbacks.OnState != nil {
		m.callbacks.OnState(connected)
	}
}

func (m *Manager) reportError(err error) {
	if m.callbacks.OnError != nil {
		m.callbacks.OnError(err)
	}
}

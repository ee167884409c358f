// Package stubagent is a scriptable agent backend used by end-to-end
// tests and local development. It speaks the same wire contract as a
// real backend: user turns arrive as chat.message frames, approval
// decisions as approval.resume frames, and scripted event sequences
// stream back.
package stubagent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/agent-scaffold/chatstream/pkg/events"
	"github.com/agent-scaffold/chatstream/pkg/version"
)

// Responder decides what event frames to stream back for each inbound
// frame. Returned frames are marshaled to JSON and sent in order.
type Responder interface {
	OnChatMessage(message string) []any
	OnApprovalResume(decisions []events.Decision) []any
}

// Server is the stub agent HTTP/WebSocket server.
type Server struct {
	responder Responder
	echo      *echo.Echo
}

// New builds a stub agent server around the given responder.
func New(responder Responder) *Server {
	s := &Server{responder: responder}

	e := echo.New()
	e.GET("/healthz", s.healthHandler)
	e.GET("/ws", s.wsHandler)
	s.echo = e

	return s
}

// Handler returns the HTTP handler for serving, typically wrapped in
// an httptest.Server by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version.GitCommit,
	})
}

// wsHandler upgrades the connection and pumps frames until the client
// disconnects.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// The stub serves tests and local development only.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.serveConn(c.Request().Context(), conn)
	return nil
}

// inboundFrame is the union of the two outbound client frame shapes.
type inboundFrame struct {
	Type      string            `json:"type"`
	Message   string            `json:"message,omitempty"`
	Decisions []events.Decision `json:"decisions,omitempty"`
}

func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("Stub agent received malformed frame", "error", err)
			continue
		}

		var out []any
		switch frame.Type {
		case events.FrameTypeChatMessage:
			out = s.responder.OnChatMessage(frame.Message)
		case events.FrameTypeApprovalResume:
			out = s.responder.OnApprovalResume(frame.Decisions)
		default:
			slog.Warn("Stub agent received unknown frame type", "type", frame.Type)
			continue
		}

		for _, ev := range out {
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Stub agent failed to marshal event", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
	}
}

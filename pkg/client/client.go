// Package client wires the connection manager, event parser, reducer,
// and conversation store into one session facade.
//
// Inbound frames flow: ws.Manager → events.Parse → Store.ApplyEvent.
// User input flows the opposite direction: SendMessage/SubmitDecisions
// → ws.Manager.Send. Frames are processed strictly in arrival order;
// the store serializes transcript mutations.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agent-scaffold/chatstream/pkg/approval"
	"github.com/agent-scaffold/chatstream/pkg/config"
	"github.com/agent-scaffold/chatstream/pkg/events"
	"github.com/agent-scaffold/chatstream/pkg/store"
	"github.com/agent-scaffold/chatstream/pkg/transcript"
	"github.com/agent-scaffold/chatstream/pkg/ws"
)

var (
	// ErrNotConnected indicates a user message was attempted while the
	// connection is down.
	ErrNotConnected = errors.New("not connected to agent")

	// ErrNoConversation indicates no conversation is selected.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrAwaitingApproval indicates user input is frozen until the
	// outstanding approval request is resolved.
	ErrAwaitingApproval = errors.New("approval decision required before sending")

	// ErrNoPendingApproval indicates a decision batch was submitted
	// with no outstanding approval request.
	ErrNoPendingApproval = errors.New("no pending approval")
)

// Callbacks notify the presentation layer. All callbacks may be nil
// and are invoked from the connection's read goroutine.
type Callbacks struct {
	// OnUpdate fires after the selected transcript changed.
	OnUpdate func()

	// OnConnection fires on every connection state change.
	OnConnection func(connected bool)

	// OnError receives transport errors, including ws.ErrReconnectExhausted
	// when the reconnect ceiling is reached.
	OnError func(err error)
}

// Client is the session facade the presentation layer talks to.
type Client struct {
	manager   *ws.Manager
	store     *store.Store
	callbacks Callbacks
}

// New builds a client from resolved configuration and an open store.
func New(cfg *config.Config, st *store.Store, callbacks Callbacks) *Client {
	c := &Client{
		store:     st,
		callbacks: callbacks,
	}

	c.manager = ws.NewManager(
		ws.Config{
			URL:                  cfg.Server.URL,
			WriteTimeout:         cfg.Server.WriteTimeout,
			Reconnect:            cfg.Reconnect.Enabled,
			ReconnectInterval:    cfg.Reconnect.Interval,
			MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		},
		ws.Callbacks{
			OnFrame: c.handleFrame,
			OnState: func(connected bool) {
				if callbacks.OnConnection != nil {
					callbacks.OnConnection(connected)
				}
			},
			OnError: func(err error) {
				if callbacks.OnError != nil {
					callbacks.OnError(err)
				}
			},
		},
	)

	return c
}

// Connect opens the connection to the agent backend.
func (c *Client) Connect(ctx context.Context) {
	c.manager.Connect(ctx)
}

// Disconnect closes the connection and cancels any pending reconnect.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
}

// Connected reports whether the connection is currently open.
func (c *Client) Connected() bool {
	return c.manager.Connected()
}

// Store exposes the conversation store for selection and listing.
func (c *Client) Store() *store.Store {
	return c.store
}

// SendMessage records a user message in the selected conversation and
// transmits it as a new turn. Input is rejected while an approval
// request is outstanding.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	conv := c.store.Selected()
	if conv == nil {
		return ErrNoConversation
	}
	if conv.Transcript.Phase() == transcript.PhaseAwaitingApproval {
		return ErrAwaitingApproval
	}
	if !c.manager.Connected() {
		return ErrNotConnected
	}

	if err := c.store.AppendUserMessage(ctx, text); err != nil {
		return fmt.Errorf("failed to record user message: %w", err)
	}
	c.notifyUpdate()

	c.manager.Send(events.NewChatMessageFrame(text))
	return nil
}

// SubmitDecisions resolves the outstanding approval request with one
// draft decision per requested action, order-correlated with the
// request's action list. The pending approval is cleared synchronously
// with submission, regardless of whether the send succeeds: the
// session must not stay frozen on a dropped frame.
func (c *Client) SubmitDecisions(ctx context.Context, drafts []approval.Draft) error {
	conv := c.store.Selected()
	if conv == nil {
		return ErrNoConversation
	}
	pending := conv.Transcript.Pending()
	if pending == nil {
		return ErrNoPendingApproval
	}

	decisions, summary, err := approval.Build(pending, drafts)
	if err != nil {
		return fmt.Errorf("failed to build decision batch: %w", err)
	}

	if err := c.store.ResolveApproval(ctx, summary.String()); err != nil {
		return fmt.Errorf("failed to resolve approval: %w", err)
	}
	c.notifyUpdate()

	// Best-effort: a dropped frame is not retried here.
	c.manager.Send(events.NewApprovalResumeFrame(decisions))
	return nil
}

// handleFrame decodes one inbound frame and feeds it through the
// reducer. A malformed frame or unknown event type is discarded; the
// connection stays up.
func (c *Client) handleFrame(data []byte) {
	ev, err := events.Parse(data)
	if err != nil {
		if errors.Is(err, events.ErrUnknownType) {
			slog.Debug("Ignoring unknown event type", "error", err)
		} else {
			slog.Warn("Discarding malformed frame", "error", err)
		}
		return
	}

	if err := c.store.ApplyEvent(context.Background(), ev); err != nil {
		slog.Error("Failed to apply event", "event_type", ev.Type, "error", err)
		return
	}
	c.notifyUpdate()
}

func (c *Client) notifyUpdate() {
	if c.callbacks.OnUpdate != nil {
		c.callbacks.OnUpdate()
	}
}

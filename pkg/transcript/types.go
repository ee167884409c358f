// Package transcript holds the conversation data model and the reducer
// that rebuilds a transcript from the backend's event stream.
package transcript

import (
	"time"

	"github.com/agent-scaffold/chatstream/pkg/events"
)

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolCallStatus captures the lifecycle state of a single tool invocation.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallError     ToolCallStatus = "error"
)

// statusRank orders tool call statuses for the monotonicity invariant:
// pending → running → {completed, error}. Terminal statuses share a rank
// so neither can overwrite the other.
var statusRank = map[ToolCallStatus]int{
	ToolCallPending:   0,
	ToolCallRunning:   1,
	ToolCallCompleted: 2,
	ToolCallError:     2,
}

// ToolCall is one tool invocation owned by exactly one Message.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Result    any            `json:"result,omitempty"`
	Status    ToolCallStatus `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// advance moves the call to status unless that would transition backward.
// Returns whether the status actually changed.
func (c *ToolCall) advance(status ToolCallStatus) bool {
	if statusRank[status] <= statusRank[c.Status] {
		return false
	}
	c.Status = status
	return true
}

// Message is a single entry in a transcript. Content grows via delta
// application while Open is true; closed messages are immutable except
// for tool call result correlation.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Open      bool       `json:"open"`
	GroupID   string     `json:"group_id,omitempty"` // shared by messages of one multi-step turn
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// PendingApproval is the at-most-one approval interrupt for a transcript.
// Policies is index-correlated with Actions.
type PendingApproval struct {
	Actions   []events.ProposedAction
	Policies  []events.ReviewPolicy
	CreatedAt time.Time
}

// Policy returns the review policy for action index i, or the default
// (not editable, no timeout) when the backend supplied none.
func (p *PendingApproval) Policy(i int) events.ReviewPolicy {
	if i < 0 || i >= len(p.Policies) {
		return events.ReviewPolicy{}
	}
	return p.Policies[i]
}

// Phase is the reducer's per-transcript state. Exactly one holds at any
// instant; it is derived, not stored.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseStreaming        Phase = "streaming"
	PhaseAwaitingApproval Phase = "awaiting_approval"
)

// Transcript is the ordered message sequence for one conversation plus
// the reducer state needed to fold further events into it.
//
// A Transcript is not safe for concurrent use; the owner serializes
// access (one event processed to completion before the next).
type Transcript struct {
	Messages []Message `json:"messages"`

	// Runtime reducer state — deliberately not persisted. A transcript
	// reloaded from storage starts Idle; an in-flight turn does not
	// survive a restart.
	pending        *PendingApproval
	groupID        string
	approvalMarker string
	processing     bool
}

// Phase reports the current reducer state.
func (t *Transcript) Phase() Phase {
	if t.pending != nil {
		return PhaseAwaitingApproval
	}
	if m := t.trailing(); m != nil && m.Open {
		return PhaseStreaming
	}
	return PhaseIdle
}

// Pending returns the active approval interrupt, or nil.
func (t *Transcript) Pending() *PendingApproval {
	return t.pending
}

// Processing reports the presentation-level busy flag.
func (t *Transcript) Processing() bool {
	return t.processing
}

// trailing returns the last message, or nil for an empty transcript.
// Only the trailing message is ever mutated by the reducer.
func (t *Transcript) trailing() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// Clear discards all messages and resets reducer state.
func (t *Transcript) Clear() {
	t.Messages = nil
	t.pending = nil
	t.groupID = ""
	t.approvalMarker = ""
	t.processing = false
}

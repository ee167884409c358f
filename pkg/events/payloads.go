package events

// BasePayload carries the fields common to every inbound frame.
type BasePayload struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"` // RFC3339Nano, advisory
}

// TurnStartedPayload is the payload for turn.started events.
// The model is about to respond to the latest user message.
type TurnStartedPayload struct {
	BasePayload
	TurnID string `json:"turn_id,omitempty"`
}

// StreamChunkPayload is the payload for stream.chunk events.
// High-frequency incremental text for the trailing open message.
type StreamChunkPayload struct {
	BasePayload
	Delta string `json:"delta"`
}

// ToolCallStartedPayload is the payload for tool_call.started events.
// CallID may be empty when the backing framework does not assign stable
// identifiers; the client generates one locally in that case.
type ToolCallStartedPayload struct {
	BasePayload
	CallID   string         `json:"call_id,omitempty"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
}

// ToolCallResultPayload is the payload for tool_call.result events.
// Correlated to a started call by CallID when present, otherwise by
// (tool_name, status=running) best effort. A non-empty Error marks the
// invocation failed instead of completed.
type ToolCallResultPayload struct {
	BasePayload
	CallID   string `json:"call_id,omitempty"`
	ToolName string `json:"tool_name"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TaskStartedPayload is the payload for task.started events — a new
// logical sub-step (sub-agent, pipeline stage) of a multi-step turn.
type TaskStartedPayload struct {
	BasePayload
	TaskID string `json:"task_id,omitempty"`
	Title  string `json:"title,omitempty"`
}

// TaskCompletedPayload is the payload for task.completed events.
// Content, when present, is the step's final text and replaces any
// placeholder still in the open message.
type TaskCompletedPayload struct {
	BasePayload
	TaskID  string `json:"task_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// FinalResultPayload is the payload for final.result events — the
// terminal event for a whole turn.
type FinalResultPayload struct {
	BasePayload
	Content string `json:"content,omitempty"`
}

// SessionErrorPayload is the payload for session.error events.
// The turn terminates; the message text is surfaced inline.
type SessionErrorPayload struct {
	BasePayload
	Message string `json:"message"`
}

// ProposedAction is one tool invocation awaiting human sign-off.
type ProposedAction struct {
	ID       string         `json:"id"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
}

// ReviewPolicy describes how a proposed action may be reviewed.
// TimeoutSeconds is advisory metadata for the presentation layer; the
// client never auto-rejects on elapse.
type ReviewPolicy struct {
	Editable       bool `json:"editable"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty"`
}

// ApprovalRequiredPayload is the payload for approval.required events.
// Policies is index-correlated with Actions; a missing entry means the
// default policy (not editable, no timeout).
type ApprovalRequiredPayload struct {
	BasePayload
	Actions  []ProposedAction `json:"actions"`
	Policies []ReviewPolicy   `json:"policies,omitempty"`
}

// ProcessingCompletePayload is the payload for processing.complete
// events. Clears the busy flag only — never closes a message.
type ProcessingCompletePayload struct {
	BasePayload
}

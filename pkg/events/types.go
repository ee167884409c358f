// Package events defines the wire vocabulary spoken between the agent
// backend and the client, and the tolerant parser that decodes it.
//
// ════════════════════════════════════════════════════════════════
// Turn Lifecycle Patterns
// ════════════════════════════════════════════════════════════════
//
// A turn follows one of two lifecycle patterns, depending on whether the
// backing agent is a single-shot streamer or a multi-step task chain.
//
// Pattern 1 — SINGLE-SHOT:
//
//	turn.started
//	stream.chunk     {delta: "..."}  (repeated)
//	tool_call.started / tool_call.result  (optional, interleaved)
//	final.result     {content: "..."}  (content optional — deltas already
//	                                    delivered the text)
//
// Pattern 2 — TASK CHAIN (multi-step execution):
//
//	turn.started
//	task.started     {task_id, title}   ← first one mints the group id
//	stream.chunk / tool_call.*          (scoped to the open task message)
//	task.completed   {task_id, content} (content optional final step text)
//	task.started     ...                (next step)
//	...
//	final.result
//
// Either pattern may be interrupted at any point by approval.required,
// which freezes message production until the client sends an
// approval.resume frame, or terminated early by session.error.
//
// processing.complete is advisory: it clears the client's busy flag and
// never closes a message by itself.
//
// The vocabulary is closed but versionable: unrecognized types are a
// forward-compatible no-op on the client, never an error. New backing
// agent frameworks add event variants here instead of branching on a
// framework tag.
package events

// Inbound event types (backend → client).
const (
	EventTypeTurnStarted        = "turn.started"
	EventTypeStreamChunk        = "stream.chunk"
	EventTypeToolCallStarted    = "tool_call.started"
	EventTypeToolCallResult     = "tool_call.result"
	EventTypeTaskStarted        = "task.started"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeFinalResult        = "final.result"
	EventTypeSessionError       = "session.error"
	EventTypeApprovalRequired   = "approval.required"
	EventTypeProcessingComplete = "processing.complete"
)

// Outbound frame types (client → backend).
const (
	FrameTypeChatMessage    = "chat.message"
	FrameTypeApprovalResume = "approval.resume"
)

// Decision types carried in an approval.resume frame.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionEdit    = "edit"
)

package stubagent

import (
	"sync"
	"time"

	"github.com/agent-scaffold/chatstream/pkg/events"
)

// ScriptedResponder replays queued frame sequences: each chat.message
// consumes the next queued turn, each approval.resume the next queued
// resume. An empty queue yields no frames.
type ScriptedResponder struct {
	mu          sync.Mutex
	turns       [][]any
	resumeTurns [][]any

	// ReceivedMessages and ReceivedDecisions record what the client
	// sent, for test assertions.
	ReceivedMessages  []string
	ReceivedDecisions [][]events.Decision
}

// NewScriptedResponder creates an empty responder.
func NewScriptedResponder() *ScriptedResponder {
	return &ScriptedResponder{}
}

// QueueTurn schedules the event frames streamed for the next
// chat.message.
func (r *ScriptedResponder) QueueTurn(frames ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, frames)
}

// QueueResume schedules the event frames streamed for the next
// approval.resume.
func (r *ScriptedResponder) QueueResume(frames ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumeTurns = append(r.resumeTurns, frames)
}

// Messages returns a snapshot of the chat messages received so far.
func (r *ScriptedResponder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ReceivedMessages...)
}

// Decisions returns a snapshot of the decision batches received so far.
func (r *ScriptedResponder) Decisions() [][]events.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]events.Decision(nil), r.ReceivedDecisions...)
}

func (r *ScriptedResponder) OnChatMessage(message string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ReceivedMessages = append(r.ReceivedMessages, message)
	if len(r.turns) == 0 {
		return nil
	}
	next := r.turns[0]
	r.turns = r.turns[1:]
	return next
}

func (r *ScriptedResponder) OnApprovalResume(decisions []events.Decision) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ReceivedDecisions = append(r.ReceivedDecisions, decisions)
	if len(r.resumeTurns) == 0 {
		return nil
	}
	next := r.resumeTurns[0]
	r.resumeTurns = r.resumeTurns[1:]
	return next
}

func base(eventType string) events.BasePayload {
	return events.BasePayload{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Frame constructors for scripting event sequences.

func TurnStarted(turnID string) events.TurnStartedPayload {
	return events.TurnStartedPayload{BasePayload: base(events.EventTypeTurnStarted), TurnID: turnID}
}

func Chunk(delta string) events.StreamChunkPayload {
	return events.StreamChunkPayload{BasePayload: base(events.EventTypeStreamChunk), Delta: delta}
}

func ToolStarted(callID, toolName string, args map[string]any) events.ToolCallStartedPayload {
	return events.ToolCallStartedPayload{
		BasePayload: base(events.EventTypeToolCallStarted),
		CallID:      callID,
		ToolName:    toolName,
		Args:        args,
	}
}

func ToolResult(callID, toolName string, result any) events.ToolCallResultPayload {
	return events.ToolCallResultPayload{
		BasePayload: base(events.EventTypeToolCallResult),
		CallID:      callID,
		ToolName:    toolName,
		Result:      result,
	}
}

func ToolError(callID, toolName, errMsg string) events.ToolCallResultPayload {
	return events.ToolCallResultPayload{
		BasePayload: base(events.EventTypeToolCallResult),
		CallID:      callID,
		ToolName:    toolName,
		Error:       errMsg,
	}
}

func TaskStarted(taskID, title string) events.TaskStartedPayload {
	return events.TaskStartedPayload{BasePayload: base(events.EventTypeTaskStarted), TaskID: taskID, Title: title}
}

func TaskCompleted(taskID, content string) events.TaskCompletedPayload {
	return events.TaskCompletedPayload{BasePayload: base(events.EventTypeTaskCompleted), TaskID: taskID, Content: content}
}

func FinalResult(content string) events.FinalResultPayload {
	return events.FinalResultPayload{BasePayload: base(events.EventTypeFinalResult), Content: content}
}

func SessionError(message string) events.SessionErrorPayload {
	return events.SessionErrorPayload{BasePayload: base(events.EventTypeSessionError), Message: message}
}

func ApprovalRequired(actions []events.ProposedAction, policies []events.ReviewPolicy) events.ApprovalRequiredPayload {
	return events.ApprovalRequiredPayload{
		BasePayload: base(events.EventTypeApprovalRequired),
		Actions:     actions,
		Policies:    policies,
	}
}

func ProcessingComplete() events.ProcessingCompletePayload {
	return events.ProcessingCompletePayload{BasePayload: base(events.EventTypeProcessingComplete)}
}

// StreamingTurn scripts a plain single-shot turn: turn start, one
// chunk per element of chunks, final result, processing complete.
func StreamingTurn(turnID string, chunks ...string) []any {
	frames := []any{TurnStarted(turnID)}
	for _, c := range chunks {
		frames = append(frames, Chunk(c))
	}
	frames = append(frames, FinalResult(""), ProcessingComplete())
	return frames
}

// ErrorTurn scripts a turn that fails mid-stream.
func ErrorTurn(turnID, partial, errMsg string) []any {
	return []any{
		TurnStarted(turnID),
		Chunk(partial),
		SessionError(errMsg),
		ProcessingComplete(),
	}
}

package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agent-scaffold/chatstream/pkg/events"
)

// Apply folds one decoded event into the transcript. It is synchronous
// and processes the event to completion; correctness depends on the
// backend emitting events in causal order — the reducer performs no
// reordering or buffering.
func (t *Transcript) Apply(ev *events.Event) {
	if ev == nil {
		return
	}
	switch {
	case ev.TurnStarted != nil:
		t.applyTurnStarted()
	case ev.StreamChunk != nil:
		t.applyStreamChunk(ev.StreamChunk)
	case ev.ToolCallStarted != nil:
		t.applyToolCallStarted(ev.ToolCallStarted)
	case ev.ToolCallResult != nil:
		t.applyToolCallResult(ev.ToolCallResult)
	case ev.TaskStarted != nil:
		t.applyTaskStarted(ev.TaskStarted)
	case ev.TaskCompleted != nil:
		t.applyTaskCompleted(ev.TaskCompleted)
	case ev.FinalResult != nil:
		t.applyFinalResult(ev.FinalResult)
	case ev.SessionError != nil:
		t.applySessionError(ev.SessionError)
	case ev.ApprovalRequired != nil:
		t.applyApprovalRequired(ev.ApprovalRequired)
	case ev.ProcessingComplete != nil:
		t.processing = false
	}
}

// AppendUserMessage appends a closed user message. Called by the client
// when a user turn is sent, not driven by the event stream.
func (t *Transcript) AppendUserMessage(content string) *Message {
	t.Messages = append(t.Messages, Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return t.trailing()
}

func (t *Transcript) applyTurnStarted() {
	// A plain turn never carries a group id; any id from a previous
	// multi-step turn is stale by now.
	t.groupID = ""
	t.processing = true
	t.appendAssistant("", "")
}

func (t *Transcript) applyStreamChunk(p *events.StreamChunkPayload) {
	m := t.trailing()
	if m == nil || !m.Open {
		// No open message — the delta has nowhere to go. Dropping it is
		// the documented behavior for out-of-order remains of a closed turn.
		return
	}
	m.Content += p.Delta
}

func (t *Transcript) applyToolCallStarted(p *events.ToolCallStartedPayload) {
	m := t.trailing()
	if m == nil {
		return
	}
	id := p.CallID
	if id == "" {
		id = uuid.New().String()
	}
	m.ToolCalls = append(m.ToolCalls, ToolCall{
		ID:        id,
		Name:      p.ToolName,
		Args:      p.Args,
		Status:    ToolCallRunning,
		UpdatedAt: time.Now().UTC(),
	})
}

func (t *Transcript) applyToolCallResult(p *events.ToolCallResultPayload) {
	call := t.findToolCall(p.CallID, p.ToolName)
	if call == nil {
		return
	}
	status := ToolCallCompleted
	if p.Error != "" {
		status = ToolCallError
	}
	if !call.advance(status) {
		// Already terminal — a duplicate or late result must not mutate it.
		return
	}
	if p.Error != "" {
		call.Result = p.Error
	} else {
		call.Result = p.Result
	}
	call.UpdatedAt = time.Now().UTC()
}

// findToolCall correlates a result to a started call: identifier match
// first, anywhere in the transcript; otherwise the earliest ToolCall
// with the same name still in running state (FIFO). The fallback is
// ambiguous under concurrent same-named calls — preserved best-effort
// behavior, covered explicitly in tests.
func (t *Transcript) findToolCall(callID, name string) *ToolCall {
	if callID != "" {
		for i := range t.Messages {
			calls := t.Messages[i].ToolCalls
			for j := range calls {
				if calls[j].ID == callID {
					return &calls[j]
				}
			}
		}
		return nil
	}
	for i := range t.Messages {
		calls := t.Messages[i].ToolCalls
		for j := range calls {
			if calls[j].Name == name && calls[j].Status == ToolCallRunning {
				return &calls[j]
			}
		}
	}
	return nil
}

func (t *Transcript) applyTaskStarted(p *events.TaskStartedPayload) {
	t.closeTrailing()
	if t.groupID == "" {
		t.groupID = uuid.New().String()
	}
	t.processing = true
	t.appendAssistant(taskPlaceholder(p.Title), t.groupID)
}

func (t *Transcript) applyTaskCompleted(p *events.TaskCompletedPayload) {
	m := t.trailing()
	if m == nil || !m.Open {
		return
	}
	if p.Content != "" {
		m.Content = p.Content
	}
	m.Open = false
}

func (t *Transcript) applyFinalResult(p *events.FinalResultPayload) {
	t.groupID = ""
	t.processing = false
	m := t.trailing()
	if m == nil {
		return
	}
	if p.Content != "" && m.Content == "" {
		m.Content = p.Content
	}
	m.Open = false
}

func (t *Transcript) applySessionError(p *events.SessionErrorPayload) {
	// An error aborts the turn: the approval interrupt (if any) dies
	// with it and the group is closed.
	t.pending = nil
	t.approvalMarker = ""
	t.groupID = ""
	t.processing = false

	annotation := fmt.Sprintf("[error] %s", p.Message)
	m := t.trailing()
	if m == nil || !m.Open {
		// No open message to annotate — closed messages are immutable, so
		// surface the error as its own message rather than losing it.
		t.Messages = append(t.Messages, Message{
			ID:        uuid.New().String(),
			Role:      RoleAssistant,
			Content:   annotation,
			CreatedAt: time.Now().UTC(),
		})
		return
	}
	if m.Content != "" {
		m.Content += "\n\n"
	}
	m.Content += annotation
	m.Open = false
}

func (t *Transcript) applyApprovalRequired(p *events.ApprovalRequiredPayload) {
	t.pending = &PendingApproval{
		Actions:   p.Actions,
		Policies:  p.Policies,
		CreatedAt: time.Now().UTC(),
	}

	marker := fmt.Sprintf("[awaiting approval: %d action(s)]", len(p.Actions))
	m := t.trailing()
	if m == nil || !m.Open {
		// Closed messages stay closed — carry the marker on a fresh
		// assistant message instead. The carrier is not a streaming
		// message, so it starts closed.
		t.appendAssistant("", t.groupID)
		m = t.trailing()
		m.Open = false
	}
	if m.Content != "" {
		marker = "\n\n" + marker
	}
	m.Content += marker
	t.approvalMarker = marker
}

// ResolveApproval clears the pending approval and swaps the awaiting
// marker for a decision summary. Returns false when no approval is
// pending. The clear is unconditional and synchronous with submission —
// the UI must never stay frozen on a dropped resume frame.
func (t *Transcript) ResolveApproval(summary string) bool {
	if t.pending == nil {
		return false
	}
	t.pending = nil

	if t.approvalMarker != "" {
		replacement := summary
		if replacement != "" && len(t.approvalMarker) > 2 && t.approvalMarker[:2] == "\n\n" {
			replacement = "\n\n" + replacement
		}
		// The marker lives in the most recently annotated message —
		// search backwards.
		for i := len(t.Messages) - 1; i >= 0; i-- {
			if idx := strings.LastIndex(t.Messages[i].Content, t.approvalMarker); idx >= 0 {
				m := &t.Messages[i]
				m.Content = m.Content[:idx] + replacement + m.Content[idx+len(t.approvalMarker):]
				break
			}
		}
		t.approvalMarker = ""
	}
	return true
}

func (t *Transcript) appendAssistant(content, groupID string) {
	t.Messages = append(t.Messages, Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		Open:      true,
		GroupID:   groupID,
		CreatedAt: time.Now().UTC(),
	})
}

func (t *Transcript) closeTrailing() {
	if m := t.trailing(); m != nil {
		m.Open = false
	}
}

func taskPlaceholder(title string) string {
	if title == "" {
		return "Working on a subtask…"
	}
	return fmt.Sprintf("Working on: %s…", title)
}

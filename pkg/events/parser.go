package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownType reports a frame whose type is outside the known
// vocabulary. Callers treat it as a no-op, not a failure: a newer
// backend may emit events this client predates.
var ErrUnknownType = errors.New("unknown event type")

// Event is one decoded inbound frame. Exactly one of the typed payload
// fields is non-nil, selected by Type. Adding a new event variant means
// adding a payload struct, a constant, and a case in Parse — existing
// reducer code is unaffected.
type Event struct {
	Type      string
	Timestamp time.Time // zero when the frame carried none

	TurnStarted        *TurnStartedPayload
	StreamChunk        *StreamChunkPayload
	ToolCallStarted    *ToolCallStartedPayload
	ToolCallResult     *ToolCallResultPayload
	TaskStarted        *TaskStartedPayload
	TaskCompleted      *TaskCompletedPayload
	FinalResult        *FinalResultPayload
	SessionError       *SessionErrorPayload
	ApprovalRequired   *ApprovalRequiredPayload
	ProcessingComplete *ProcessingCompletePayload
}

// Parse decodes one raw inbound frame into an Event.
//
// A malformed frame returns an error and MUST be discarded by the caller
// without tearing down the connection — a single corrupt frame never
// loses the session. An unrecognized type returns ErrUnknownType
// (wrapped), which callers ignore.
func Parse(frame []byte) (*Event, error) {
	var base BasePayload
	if err := json.Unmarshal(frame, &base); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if base.Type == "" {
		return nil, errors.New("malformed frame: missing type")
	}

	ev := &Event{Type: base.Type}
	if base.Timestamp != "" {
		// Advisory only — an unparseable timestamp is not a reason to
		// drop an otherwise valid frame.
		if ts, err := time.Parse(time.RFC3339Nano, base.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}

	var err error
	switch base.Type {
	case EventTypeTurnStarted:
		ev.TurnStarted = &TurnStartedPayload{}
		err = json.Unmarshal(frame, ev.TurnStarted)
	case EventTypeStreamChunk:
		ev.StreamChunk = &StreamChunkPayload{}
		err = json.Unmarshal(frame, ev.StreamChunk)
	case EventTypeToolCallStarted:
		ev.ToolCallStarted = &ToolCallStartedPayload{}
		err = json.Unmarshal(frame, ev.ToolCallStarted)
	case EventTypeToolCallResult:
		ev.ToolCallResult = &ToolCallResultPayload{}
		err = json.Unmarshal(frame, ev.ToolCallResult)
	case EventTypeTaskStarted:
		ev.TaskStarted = &TaskStartedPayload{}
		err = json.Unmarshal(frame, ev.TaskStarted)
	case EventTypeTaskCompleted:
		ev.TaskCompleted = &TaskCompletedPayload{}
		err = json.Unmarshal(frame, ev.TaskCompleted)
	case EventTypeFinalResult:
		ev.FinalResult = &FinalResultPayload{}
		err = json.Unmarshal(frame, ev.FinalResult)
	case EventTypeSessionError:
		ev.SessionError = &SessionErrorPayload{}
		err = json.Unmarshal(frame, ev.SessionError)
	case EventTypeApprovalRequired:
		ev.ApprovalRequired = &ApprovalRequiredPayload{}
		err = json.Unmarshal(frame, ev.ApprovalRequired)
	case EventTypeProcessingComplete:
		ev.ProcessingComplete = &ProcessingCompletePayload{}
		err = json.Unmarshal(frame, ev.ProcessingComplete)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed %s frame: %w", base.Type, err)
	}
	return ev, nil
}

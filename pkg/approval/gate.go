// Package approval validates human review decisions against a pending
// approval and builds the outbound resume frame.
package approval

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agent-scaffold/chatstream/pkg/events"
	"github.com/agent-scaffold/chatstream/pkg/transcript"
)

// Draft is one caller-supplied review decision, index-correlated with
// the pending approval's action list. For an edit, ReplacementArgs holds
// the raw replacement payload (JSON object) supplied by the user.
type Draft struct {
	Type            string // events.DecisionApprove | DecisionReject | DecisionEdit
	ReplacementArgs json.RawMessage
}

// Summary aggregates the outcome of a decision batch for the
// user-visible annotation. Degraded lists the zero-based indexes of edit
// decisions that fell back to reject because their replacement payload
// was malformed — leniency that is surfaced, never silent.
type Summary struct {
	Approved int
	Edited   int
	Rejected int
	Degraded []int
}

// String renders the summary as the transcript annotation that replaces
// the awaiting-approval marker.
func (s Summary) String() string {
	out := fmt.Sprintf("[decisions: %d approved, %d edited, %d rejected]", s.Approved, s.Edited, s.Rejected)
	if len(s.Degraded) > 0 {
		out += fmt.Sprintf(" (%d edit(s) had malformed arguments and were rejected)", len(s.Degraded))
	}
	return out
}

// Build validates one Draft per outstanding action and produces the wire
// decision batch. Errors are returned only for structural problems (batch
// length mismatch, unknown decision type) — a malformed edit payload is
// NOT an error: that single decision degrades to a reject and the batch
// proceeds, with the degradation recorded in the Summary.
func Build(pending *transcript.PendingApproval, drafts []Draft) ([]events.Decision, Summary, error) {
	if pending == nil {
		return nil, Summary{}, fmt.Errorf("no approval is pending")
	}
	if len(drafts) != len(pending.Actions) {
		return nil, Summary{}, fmt.Errorf("decision count %d does not match %d requested action(s)",
			len(drafts), len(pending.Actions))
	}

	decisions := make([]events.Decision, 0, len(drafts))
	var summary Summary

	for i, draft := range drafts {
		action := pending.Actions[i]
		switch draft.Type {
		case events.DecisionApprove:
			decisions = append(decisions, events.Decision{Type: events.DecisionApprove})
			summary.Approved++

		case events.DecisionReject:
			decisions = append(decisions, events.Decision{Type: events.DecisionReject})
			summary.Rejected++

		case events.DecisionEdit:
			args, err := parseReplacementArgs(draft.ReplacementArgs)
			if err != nil {
				slog.Warn("Malformed edit payload, degrading decision to reject",
					"action_index", i, "tool", action.ToolName, "error", err)
				decisions = append(decisions, events.Decision{Type: events.DecisionReject})
				summary.Rejected++
				summary.Degraded = append(summary.Degraded, i)
				continue
			}
			decisions = append(decisions, events.Decision{
				Type: events.DecisionEdit,
				EditedAction: &events.EditedAction{
					ID:       action.ID,
					ToolName: action.ToolName,
					Args:     args,
				},
			})
			summary.Edited++

		default:
			return nil, Summary{}, fmt.Errorf("unknown decision type %q at index %d", draft.Type, i)
		}
	}

	return decisions, summary, nil
}

// parseReplacementArgs decodes an edit's replacement payload. It must be
// a JSON object — anything else (invalid JSON, arrays, scalars, empty)
// is malformed.
func parseReplacementArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty replacement payload")
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if args == nil {
		return nil, fmt.Errorf("replacement payload is null")
	}
	return args, nil
}

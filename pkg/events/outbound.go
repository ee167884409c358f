package events

// ChatMessageFrame is the outbound frame for a new user turn.
type ChatMessageFrame struct {
	Type    string `json:"type"` // always FrameTypeChatMessage
	Message string `json:"message"`
}

// NewChatMessageFrame builds an outbound user-turn frame.
func NewChatMessageFrame(message string) ChatMessageFrame {
	return ChatMessageFrame{Type: FrameTypeChatMessage, Message: message}
}

// EditedAction is the replacement action carried by an edit decision.
type EditedAction struct {
	ID       string         `json:"id"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

// Decision is one reviewed entry of an approval batch, index-correlated
// with the pending approval's action list. EditedAction is set only when
// Type is DecisionEdit.
type Decision struct {
	Type         string        `json:"type"` // approve | reject | edit
	EditedAction *EditedAction `json:"edited_action,omitempty"`
}

// ApprovalResumeFrame is the outbound frame resuming a turn frozen on
// approval.required. Decisions always has exactly one entry per
// requested action.
type ApprovalResumeFrame struct {
	Type      string     `json:"type"` // always FrameTypeApprovalResume
	Decisions []Decision `json:"decisions"`
}

// NewApprovalResumeFrame builds an outbound decision-batch frame.
func NewApprovalResumeFrame(decisions []Decision) ApprovalResumeFrame {
	return ApprovalResumeFrame{Type: FrameTypeApprovalResume, Decisions: decisions}
}

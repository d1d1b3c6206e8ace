package session

import "time"

// Message roles. Legacy transcripts used "agent" for the assistant role; it
// is normalized to RoleAssistant when the store loads.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"

	legacyRoleAgent = "agent"
)

// Message type tags.
const (
	TypeText          = "text"
	TypeError         = "error"
	TypeCandidateList = "candidate-list"
)

// ConfirmationRequest is a proposed tool invocation awaiting user approval.
// It is live only while its message is the last one in the session.
type ConfirmationRequest struct {
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
	Message string         `json:"message,omitempty"`
}

type ToolOutput struct {
	Tool   string `json:"tool"`
	Output any    `json:"output"`
}

// Meta carries out-of-band structure on an assistant message.
type Meta struct {
	ConfirmationRequest *ConfirmationRequest `json:"confirmation_request,omitempty"`
	ToolOutputs         []ToolOutput         `json:"tool_outputs,omitempty"`
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	Data      any       `json:"data,omitempty"`
	Meta      *Meta     `json:"meta,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PendingConfirmation returns the live confirmation request, if any: only the
// last message of a session can carry an actionable confirmation.
func (s *Session) PendingConfirmation() *ConfirmationRequest {
	if len(s.Messages) == 0 {
		return nil
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleAssistant || last.Meta == nil {
		return nil
	}
	return last.Meta.ConfirmationRequest
}

const titleLimit = 30

// DeriveTitle builds a session title from the first user utterance.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleLimit]) + "..."
}

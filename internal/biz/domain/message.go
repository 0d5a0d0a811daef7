package domain

import "time"

// Origin tells who produced a stored message
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// Role is the role tag of a context window entry
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RoleFor maps a message origin to its context role.
// Anything that is not user-authored is treated as the assistant.
func RoleFor(o Origin) Role {
	if o == OriginUser {
		return RoleUser
	}
	return RoleAssistant
}

// Message represents a stored conversation message.
// Messages are immutable once appended and never deleted.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string
	AuthorName     string
	Content        Content
	Timestamp      time.Time
	Origin         Origin
}

// IsFromUser checks if the message was authored by a chat participant
func (m *Message) IsFromUser() bool {
	return m.Origin == OriginUser
}

// AuthorLabel returns the display name, falling back to the author ID
func (m *Message) AuthorLabel() string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	return m.AuthorID
}

// ChatMessage is one role-tagged entry of a context window
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

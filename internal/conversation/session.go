// Package conversation keeps the user's chat sessions: named, ordered,
// append-only transcripts with at most one active session at a time.
package conversation

import (
	"fmt"
	"slices"
	"time"
)

// Role identifies who wrote a message.
type Role string

// Valid message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Message is one turn of a session. Messages are never edited once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a titled transcript.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

func (s Session) clone() Session {
	s.Messages = slices.Clone(s.Messages)
	return s
}

// Package nudge decides when to proactively prompt the user. A registry of
// rules is evaluated on a schedule; the winning rule becomes the single
// pending notification on the Surface until it is accepted, dismissed,
// or expires.
package nudge

import (
	"fmt"
	"strings"
	"time"
)

// Type is the closed set of nudge kinds.
type Type string

// Nudge types.
const (
	TypeMorning  Type = "morning"
	TypeMidday   Type = "midday"
	TypeEvening  Type = "evening"
	TypeManual   Type = "manual"
	TypeReminder Type = "reminder"
)

// Types lists every nudge type.
var Types = []Type{TypeMorning, TypeMidday, TypeEvening, TypeManual, TypeReminder}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeMorning, TypeMidday, TypeEvening, TypeManual, TypeReminder:
		return true
	}
	return false
}

// Priority orders rules that trigger in the same tick.
type Priority int

// Priorities, lowest first.
const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

// String returns the lowercase priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses "low", "medium" or "high".
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return 0, fmt.Errorf("nudge: unknown priority %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Family groups rules by evaluation cadence.
type Family string

// Rule families.
const (
	// FamilyTimed rules match narrow time-of-day windows and are evaluated
	// every minute.
	FamilyTimed Family = "timed"
	// FamilyContextual rules look at store contents and are evaluated
	// every five minutes.
	FamilyContextual Family = "contextual"
)

// Message is the content of a nudge. PromptText is an instruction for the
// chat pipeline, not text shown to the user as is.
type Message struct {
	Type       Type     `json:"type"`
	Title      string   `json:"title"`
	Emoji      string   `json:"emoji"`
	Priority   Priority `json:"priority"`
	PromptText string   `json:"prompt_text"`
}

// Notification is a Message that has been surfaced to the user.
type Notification struct {
	ID string `json:"id"`
	Message
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

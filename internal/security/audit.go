package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types for user-data changes made through the gateway.
const (
	EventAuthFailure   EventType = "auth_failure"
	EventRateLimit     EventType = "rate_limit"
	EventMemoryDelete  EventType = "memory_delete"
	EventMemoryClear   EventType = "memory_clear"
	EventSessionDelete EventType = "session_delete"
	EventSessionsClear EventType = "sessions_clear"
	EventRuleToggle    EventType = "rule_toggle"
	EventNudgeTrigger  EventType = "nudge_trigger"
	EventConfigReload  EventType = "config_reload"
	EventJobRun        EventType = "job_run"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Remote    string            `json:"remote,omitempty"`
	Target    string            `json:"target,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to OnEvent.
	Writer io.Writer

	// Redactor, if non-nil, is applied to Detail and Metadata values before writing.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event.
	OnEvent func(AuditEvent)

	Now func() time.Time
}

// AuditLogger writes structured audit events as JSONL with optional redaction.
// A nil *AuditLogger discards events.
type AuditLogger struct {
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
	mu       sync.Mutex
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log stamps and records event. The caller's Metadata map is never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}

// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/nudgeme/nudgeme/internal/security"
)

// NewTestRedactor creates a Redactor with no patterns, so test strings
// that look like secrets stay readable.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestAuditLogger creates an AuditLogger that keeps events in memory.
// It returns the logger and a function to retrieve logged events.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		},
	})
	return logger, func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		out := make([]security.AuditEvent, len(events))
		copy(out, events)
		return out
	}
}

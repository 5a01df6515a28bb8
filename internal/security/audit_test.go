package security

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return fixedTime },
	})

	logger.Log(AuditEvent{
		Type:   EventMemoryDelete,
		Remote: "127.0.0.1:5555",
		Target: "01J0000000000000000000000",
	})
	logger.Log(AuditEvent{Type: EventMemoryClear})

	dec := json.NewDecoder(&buf)
	var first, second AuditEvent
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode second: %v", err)
	}

	if first.Type != EventMemoryDelete || first.Target != "01J0000000000000000000000" {
		t.Errorf("first = %+v", first)
	}
	if !first.Timestamp.Equal(fixedTime) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, fixedTime)
	}
	if second.Type != EventMemoryClear {
		t.Errorf("second type = %q", second.Type)
	}
}

func TestAuditLogger_RedactsDetailAndMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf, Redactor: NewRedactor()})

	meta := map[string]string{"dsn": "postgres://u:pw@db/x"}
	logger.Log(AuditEvent{
		Type:     EventConfigReload,
		Detail:   "gemini key " + testGeminiKey,
		Metadata: meta,
	})

	out := buf.String()
	if strings.Contains(out, testGeminiKey) || strings.Contains(out, ":pw@") {
		t.Errorf("secret written to audit log: %s", out)
	}
	if meta["dsn"] != "postgres://u:pw@db/x" {
		t.Error("caller metadata was mutated")
	}
}

func TestAuditLogger_OnEventWithoutWriter(t *testing.T) {
	t.Parallel()

	var got []AuditEvent
	logger := NewAuditLogger(AuditLoggerConfig{
		OnEvent: func(e AuditEvent) { got = append(got, e) },
	})

	logger.Log(AuditEvent{Type: EventRuleToggle, Target: "morning", Detail: "enabled=false"})

	if len(got) != 1 || got[0].Target != "morning" {
		t.Fatalf("events = %+v", got)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	t.Parallel()

	var logger *AuditLogger
	logger.Log(AuditEvent{Type: EventNudgeTrigger})
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEvent{Type: EventNudgeTrigger})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("lines = %d, want 20", len(lines))
	}
	for _, line := range lines {
		var e AuditEvent
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Errorf("interleaved line %q: %v", line, err)
		}
	}
}

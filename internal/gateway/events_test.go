package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/nudgeme/nudgeme/internal/nudge"
)

func readEvent(t *testing.T, conn *websocket.Conn) nudge.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var ev nudge.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestEvents_PendingThenTransitions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	pending := env.gw.engine.TriggerManual(t.Context())

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(t.Context(), url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	ev := readEvent(t, conn)
	if ev.Kind != nudge.EventEmitted || ev.Notification.ID != pending.ID {
		t.Fatalf("first event = %s %s, want emitted %s", ev.Kind, ev.Notification.ID, pending.ID)
	}

	if err := env.gw.engine.Dismiss(pending.ID); err != nil {
		t.Fatal(err)
	}
	ev = readEvent(t, conn)
	if ev.Kind != nudge.EventDismissed || ev.Notification.ID != pending.ID {
		t.Errorf("second event = %s %s, want dismissed %s", ev.Kind, ev.Notification.ID, pending.ID)
	}

	next := env.gw.engine.TriggerManual(t.Context())
	ev = readEvent(t, conn)
	if ev.Kind != nudge.EventEmitted || ev.Notification.ID != next.ID {
		t.Errorf("third event = %s %s, want emitted %s", ev.Kind, ev.Notification.ID, next.ID)
	}
}

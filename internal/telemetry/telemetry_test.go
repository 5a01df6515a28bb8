package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	// None of these may panic.
	m.TickRan("timed")
	m.RuleFired("morning")
	m.RuleFailed("morning")
	m.NotificationEvent("emitted")
	m.ChatCompleted("ok", time.Second)
	m.StorageFailed("memory")
	m.RemoteFallback("select")
	m.RequestServed("/health", "GET", 200)
	m.EventClients(1)
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	m := NewMetrics()

	m.RuleFired("morning")
	m.RuleFired("morning")
	m.RuleFailed("broken")
	m.StorageFailed("memory")

	if got := testutil.ToFloat64(m.rulesFired.WithLabelValues("morning")); got != 2 {
		t.Errorf("rules fired = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ruleErrors.WithLabelValues("broken")); got != 1 {
		t.Errorf("rule errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.storageFailures.WithLabelValues("memory")); got != 1 {
		t.Errorf("storage failures = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.TickRan("timed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "nudgeme_nudge_ticks_total") {
		t.Errorf("metrics output missing tick counter:\n%s", body)
	}
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	t.Parallel()
	shutdown, err := SetupTracing(context.Background(), TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

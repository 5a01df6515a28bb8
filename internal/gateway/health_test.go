package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/nudgeme/nudgeme/internal/kv/kvtest"
	"github.com/nudgeme/nudgeme/internal/mcpserver"
	"github.com/nudgeme/nudgeme/internal/memory"
)

func TestHealth_Degraded(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	flaky := kvtest.NewFlakyStore()
	mems, err := memory.New(flaky, memory.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatal(err)
	}
	env.gw.memories = mems

	flaky.SetFailing(true)
	mems.Append(t.Context(), "unsaved", memory.CategoryGeneral, nil)

	status, body := env.do(t, http.MethodGet, "/health", "")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || len(resp.Unsaved) != 1 || resp.Unsaved[0] != "memory" {
		t.Errorf("health = %+v", resp)
	}

	flaky.SetFailing(false)
	if err := mems.Flush(); err != nil {
		t.Fatal(err)
	}
	if status, _ := env.do(t, http.MethodGet, "/health", ""); status != http.StatusOK {
		t.Errorf("status after flush = %d, want 200", status)
	}
}

func TestMetrics_CountsRoutePatterns(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.do(t, http.MethodDelete, "/api/memories/abc", "")
	env.do(t, http.MethodDelete, "/api/memories/def", "")

	status, body := env.do(t, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("metrics = %d", status)
	}
	want := `nudgeme_http_requests_total{code="404",method="DELETE",route="/api/memories/{id}"} 2`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %s", want)
	}
}

type stubReloader struct{ err error }

func (s stubReloader) Reload(context.Context) error { return s.err }

func TestReloadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reloader Reloader
		want     int
	}{
		{name: "ok", reloader: stubReloader{}, want: http.StatusOK},
		{name: "invalid config", reloader: stubReloader{err: errors.New("version must be 1")}, want: http.StatusUnprocessableEntity},
		{name: "not wired", want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []envOption
			if tt.reloader != nil {
				opts = append(opts, withReloader(tt.reloader))
			}
			env := newTestEnv(t, opts...)
			if status, body := env.do(t, http.MethodPost, "/api/config/reload", ""); status != tt.want {
				t.Errorf("status = %d, want %d (%s)", status, tt.want, body)
			}
		})
	}
}

func TestMCP_MountedWhenWired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(g *Gateway) {
		g.mcp = mcpserver.New(mcpserver.Deps{Memory: g.memories}, "test")
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`
	status, resp := env.do(t, http.MethodPost, "/mcp", body, "Accept", "application/json, text/event-stream")
	if status != http.StatusOK {
		t.Fatalf("status = %d (%s)", status, resp)
	}
	if !strings.Contains(string(resp), `"nudgeme"`) {
		t.Errorf("initialize response missing server name: %s", resp)
	}

	bare := newTestEnv(t)
	if status, _ := bare.do(t, http.MethodPost, "/mcp", body); status != http.StatusNotFound {
		t.Errorf("unwired /mcp = %d, want 404", status)
	}
}

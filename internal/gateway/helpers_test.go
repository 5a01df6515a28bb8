package gateway

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nudgeme/nudgeme/internal/assistant"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/kv"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/nudge"
	"github.com/nudgeme/nudgeme/internal/provider/providertest"
	"github.com/nudgeme/nudgeme/internal/security"
	"github.com/nudgeme/nudgeme/internal/security/securitytest"
	"github.com/nudgeme/nudgeme/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// testEnv is a gateway wired to real stores over an in-memory kv and a
// mock provider, served by httptest.
type testEnv struct {
	gw       *Gateway
	srv      *httptest.Server
	provider *providertest.MockProvider
	audit    func() []security.AuditEvent
}

type envOption func(*Gateway)

func withAuth(auth AuthConfig) envOption {
	return func(g *Gateway) { g.config.Auth = auth }
}

func withLimits(cfg security.RateLimitConfig) envOption {
	return func(g *Gateway) { g.limiter = security.NewRateLimiter(cfg) }
}

func withReloader(r Reloader) envOption {
	return func(g *Gateway) { g.reloader = r }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := kv.NewMemory()

	mems, err := memory.New(store, memory.Config{Logger: logger})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	convs, err := conversation.New(store, conversation.Config{Logger: logger})
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}
	engine, err := nudge.NewEngine(nudge.Config{
		Rules:    nudge.BuiltinRules(nudge.DefaultBuiltinOptions()),
		Store:    store,
		UserName: "Sam",
		Surface:  nudge.NewSurface(nudge.SurfaceConfig{Expiry: time.Hour, Logger: logger}),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Start(); err != nil {
		t.Fatalf("engine.Start: %v", err)
	}
	t.Cleanup(engine.Stop)

	mock := providertest.Replying("Happy to help.")
	asst, err := assistant.New(assistant.Config{
		Provider:      mock,
		Conversations: convs,
		Memory:        mems,
		UserName:      "Sam",
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("assistant.New: %v", err)
	}
	t.Cleanup(func() { _ = asst.Close() })

	audit, events := securitytest.NewTestAuditLogger()

	g := &Gateway{
		logger:        logger,
		closing:       make(chan struct{}),
		startedAt:     time.Now(),
		engine:        engine,
		memories:      mems,
		conversations: convs,
		assistant:     asst,
		metrics:       telemetry.NewMetrics(),
		audit:         audit,
	}
	g.config.defaults()
	for _, opt := range opts {
		opt(g)
	}

	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	t.Cleanup(g.closeStreams)

	return &testEnv{gw: g, srv: srv, provider: mock, audit: events}
}

// do sends a request with an optional JSON body and returns the status
// and the response body.
func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (int, []byte) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}
	}
	return doc.Content[0]
}

// discardLogger keeps module tests quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func withJobs(j JobRunner) envOption {
	return func(g *Gateway) { g.jobs = j }
}

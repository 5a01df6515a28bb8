package reload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nudgeme/nudgeme/internal/config"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/security"
	"github.com/nudgeme/nudgeme/internal/security/securitytest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nudgeme.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

func newTestHandler(t *testing.T, path string, opts ...Option) *Handler {
	t.Helper()
	logger := testLogger()
	a := core.NewApp(core.NewAppContext(logger, t.TempDir()))
	return NewHandler(a, logger, t.TempDir(), path, opts...)
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, "/nonexistent/nudgeme.yaml")
	if err := h.Reload(context.Background()); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	t.Parallel()

	audit, events := securitytest.NewTestAuditLogger()
	path := writeConfig(t, "version: \"1\"\nassistant:\n  timezone: Nowhere/Land\n")
	h := newTestHandler(t, path, WithAudit(audit))

	if err := h.Reload(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	got := events()
	if len(got) != 1 || got[0].Type != security.EventConfigReload || got[0].Detail == "ok" {
		t.Errorf("audit events = %+v", got)
	}
}

func TestHandler_HandleReload_RunsAppliers(t *testing.T) {
	t.Parallel()

	audit, events := securitytest.NewTestAuditLogger()
	path := writeConfig(t, "version: \"1\"\nassistant:\n  quiet_hours: \"22:00-06:00\"\n")

	var seen string
	h := newTestHandler(t, path, WithAudit(audit), WithApplier(func(cfg *config.Config) error {
		seen = cfg.Assistant.QuietHours
		return nil
	}))

	if err := h.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if seen != "22:00-06:00" {
		t.Errorf("applier saw quiet_hours = %q", seen)
	}
	if got := events(); len(got) != 1 || got[0].Detail != "ok" {
		t.Errorf("audit events = %+v", got)
	}
}

func TestHandler_ApplierError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	h := newTestHandler(t, "", WithApplier(func(*config.Config) error { return boom }))

	err := h.HandleReloadFromConfig(context.Background(), &config.Config{Version: "1"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	t.Parallel()

	called := false
	h := newTestHandler(t, "", WithApplier(func(*config.Config) error {
		called = true
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.HandleReloadFromConfig(ctx, &config.Config{Version: "1"}); err == nil {
		t.Error("expected error for cancelled context")
	}
	if called {
		t.Error("applier ran after cancellation")
	}
}

package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/kv"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/modules/storage/sqlite"
	"gopkg.in/yaml.v3"
)

func openTestStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetRemove(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.db"))

	if _, ok, err := s.Get("missing"); ok || err != nil {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}
	if err := s.Set("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", "v2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get("k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("Get(k) = %q, %v, %v", v, ok, err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatalf("removing an absent key: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("key still present")
	}
}

func TestOpen_CreatesDirectoryAndReopens(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "kv.db")

	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("memories", `[{"id":"1"}]`); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	reopened := openTestStore(t, path)
	v, ok, err := reopened.Get("memories")
	if err != nil || !ok || v != `[{"id":"1"}]` {
		t.Fatalf("after reopen Get = %q, %v, %v", v, ok, err)
	}
}

func TestOpen_NegativeBusyTimeout(t *testing.T) {
	t.Parallel()
	_, err := sqlite.Open(context.Background(), sqlite.Config{
		Path:        filepath.Join(t.TempDir(), "kv.db"),
		BusyTimeout: -1,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestStore_ClosedReturnsUnavailable(t *testing.T) {
	t.Parallel()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: filepath.Join(t.TempDir(), "kv.db")})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	if err := s.Set("k", "v"); err == nil {
		t.Fatal("expected error on closed store")
	}
}

// The domain stores round-trip through SQLite exactly as through kv.Memory.
func TestStore_BacksDomainStores(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kv.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	func() {
		s := openTestStore(t, path)
		mem, err := memory.New(s, memory.Config{Logger: logger})
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = mem.Close() }()
		mem.Append(ctx, "Allergic to peanuts", memory.CategoryHealth, []string{"food"})

		conv, err := conversation.New(s, conversation.Config{Logger: logger})
		if err != nil {
			t.Fatal(err)
		}
		sess := conv.CreateSession("Breakfast")
		if _, err := conv.AddMessage(sess.ID, conversation.RoleUser, "hi"); err != nil {
			t.Fatal(err)
		}
	}()

	s := openTestStore(t, path)
	mem, err := memory.New(s, memory.Config{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = mem.Close() }()
	if got := mem.Search(ctx, "peanut"); len(got) != 1 || got[0].Category != memory.CategoryHealth {
		t.Errorf("memories after reopen = %+v", got)
	}

	conv, err := conversation.New(s, conversation.Config{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	active, ok := conv.Active()
	if !ok || active.Title != "Breakfast" || len(active.Messages) != 1 {
		t.Errorf("active session after reopen = %+v, %v", active, ok)
	}
}

func TestModule_Lifecycle(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), dataDir)

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("busy_timeout: 1000\n"), &node); err != nil {
		t.Fatal(err)
	}

	m := &sqlite.Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	svc, ok := appCtx.Service(sqlite.ServiceName)
	if !ok {
		t.Fatal("kv service not registered")
	}
	if _, ok := svc.(kv.Store); !ok {
		t.Fatalf("service type = %T", svc)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "nudgeme.db")); err != nil {
		t.Errorf("default database path not used: %v", err)
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// Package sqlite provides the storage.sqlite module: the kv contract that
// the memory, conversation and nudge stores persist into, kept in one
// SQLite table via modernc.org/sqlite (pure Go, no CGO).
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/kv"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext service key of the kv.Store.
const ServiceName = kv.ServiceName

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the database handle for its lifetime.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "storage.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("storage.sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	store, err := Open(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(ServiceName, kv.Store(store))

	m.logger.Info("sqlite storage provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.Ping(context.Background()); err != nil {
		return fmt.Errorf("storage.sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("sqlite storage stopping")
	return m.store.Close()
}

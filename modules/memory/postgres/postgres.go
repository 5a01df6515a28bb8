// Package postgres provides the memory.postgres module: a PostgreSQL
// mirror of the memory collection used as the preferred read tier.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/memory"
	"gopkg.in/yaml.v3"

	_ "github.com/lib/pq" // PostgreSQL driver registration
)

// ServiceName is the AppContext service key of the memory.Remote.
const ServiceName = memory.RemoteServiceName

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the connection pool of the remote tier.
type Module struct {
	config Config
	logger *slog.Logger
	db     *sql.DB
	remote *Remote
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.postgres",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("memory.postgres: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. sql.Open does not connect, so a
// server that is down at this point is not an error.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	db, err := sql.Open("postgres", m.config.DSN)
	if err != nil {
		return fmt.Errorf("memory.postgres: open: %w", err)
	}
	db.SetMaxOpenConns(m.config.MaxOpenConns)

	m.db = db
	m.remote = NewRemote(db, m.config.Table)
	ctx.RegisterService(ServiceName, memory.Remote(m.remote))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter. An unreachable server is logged; the
// memory store falls back to its local tier until it comes back.
func (m *Module) Start() error {
	if err := m.remote.Ping(context.Background(), m.config.ConnectTimeout); err != nil {
		m.logger.Warn("remote memory tier unreachable, serving from local storage", "error", err)
		return nil
	}
	m.logger.Info("remote memory tier ready", "table", m.config.Table)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Remote returns the provisioned remote tier.
func (m *Module) Remote() *Remote {
	return m.remote
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of modules.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates a new App with the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// Context returns the root AppContext.
func (a *App) Context() *AppContext {
	return a.ctx
}

// LoadModules instantiates, provisions, and validates all modules for the
// given IDs in order. If any step fails, already-loaded modules are cleaned up.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.cleanup()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.Append(mod)
	}
	return nil
}

// Append adds an already constructed module to the lifecycle. Modules built
// by the composition root (scheduler, engine) join the app this way so they
// start after and stop before the modules they depend on.
func (a *App) Append(mod Module) {
	info := mod.ModuleInfo()
	a.modules = append(a.modules, moduleInstance{id: info.ID, module: mod})
	a.logger.Info("module loaded", "module", string(info.ID))
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, mi := range a.modules {
		if string(mi.id) == id {
			return mi.module, true
		}
	}
	return nil, false
}

// Start starts all loaded modules that implement Starter, in order.
// If any Start() fails, already-started modules are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok {
			mi.started = true
			continue
		}
		a.logger.Info("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			a.stopModules(i - 1)
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.started = true
	}
	a.logger.Info("all modules started")
	return nil
}

// Stop stops all started modules in reverse order with a timeout.
func (a *App) Stop() {
	a.stopModules(len(a.modules) - 1)
}

func (a *App) stopModules(fromIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := fromIndex; i >= 0; i-- {
		mi := &a.modules[i]
		if !mi.started {
			continue
		}
		if s, ok := mi.module.(Stopper); ok {
			a.logger.Info("stopping module", "module", string(mi.id))
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop error", "module", string(mi.id), "error", err)
			}
		}
		mi.started = false
	}
}

// Unload stops every loaded module, started or not, and forgets them. It
// releases resources acquired during Provision when startup is abandoned.
func (a *App) Unload() {
	a.cleanup()
}

func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		if s, ok := a.modules[i].module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.modules = nil
}

// ReloadModules calls Reload on all loaded modules that implement Reloader.
// Returns a joined error if any module fails to reload.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for i := range a.modules {
		mi := &a.modules[i]
		r, ok := mi.module.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(mi.id))
		if err := r.Reload(ctx.ForModule(mi.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(mi.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", mi.id, err))
		}
	}
	return errors.Join(errs...)
}

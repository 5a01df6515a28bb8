package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nudgeme/nudgeme/internal/config"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/security"
)

// ApplyFunc applies the parts of a new configuration that live outside the
// module system (quiet hours, for instance).
type ApplyFunc func(cfg *config.Config) error

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app        *core.App
	logger     *slog.Logger
	dataDir    string
	configPath string
	audit      *security.AuditLogger
	appliers   []ApplyFunc
}

// Option configures a Handler.
type Option func(*Handler)

// WithApplier adds fn to the functions run after modules reload.
func WithApplier(fn ApplyFunc) Option {
	return func(h *Handler) { h.appliers = append(h.appliers, fn) }
}

// WithAudit records every reload attempt in the audit log.
func WithAudit(a *security.AuditLogger) Option {
	return func(h *Handler) { h.audit = a }
}

// NewHandler creates a reload handler for the config file at configPath.
func NewHandler(app *core.App, logger *slog.Logger, dataDir, configPath string, opts ...Option) *Handler {
	h := &Handler{
		app:        app,
		logger:     logger,
		dataDir:    dataDir,
		configPath: configPath,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Reload re-reads the handler's config file. It satisfies the gateway's
// reload hook.
func (h *Handler) Reload(ctx context.Context) error {
	return h.HandleReload(ctx, h.configPath)
}

// HandleReload loads a fresh config from disk, validates it, and applies it.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		h.record(err)
		return fmt.Errorf("loading config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig applies a pre-loaded, already-validated config.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	err := h.apply(ctx, cfg)
	h.record(err)
	return err
}

func (h *Handler) apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	if h.app != nil {
		appCtx := core.NewAppContext(h.logger, h.dataDir).WithModuleConfigs(cfg.Modules)
		if err := h.app.ReloadModules(appCtx); err != nil {
			return fmt.Errorf("reloading modules: %w", err)
		}
	}
	for _, fn := range h.appliers {
		if err := fn(cfg); err != nil {
			return fmt.Errorf("applying config: %w", err)
		}
	}

	h.logger.Info("configuration reloaded successfully")
	return nil
}

func (h *Handler) record(err error) {
	ev := security.AuditEvent{Type: security.EventConfigReload, Target: h.configPath, Detail: "ok"}
	if err != nil {
		ev.Detail = err.Error()
	}
	h.audit.Log(ev)
}

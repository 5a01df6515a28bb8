// Package app is the composition root shared by the nudgeme commands: it
// loads configuration, wires the assistant core to the configured modules
// and runs the daemon loop.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/nudgeme/nudgeme/internal/config"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/gateway"
	"github.com/nudgeme/nudgeme/internal/reload"
	"github.com/nudgeme/nudgeme/internal/security"
	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// Modules loaded when the config names none in their namespace.
const (
	DefaultStorageModule = "storage.sqlite"
	DefaultGatewayModule = "gateway.http"
)

// auditFileName is the JSONL audit log inside the data directory.
const auditFileName = "audit.jsonl"

// backendNamespaces load before the assistant core, in this order, and so
// stop after it.
var backendNamespaces = []string{"storage", "memory", "provider"}

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogWriter receives log output. Defaults to stderr.
	LogWriter io.Writer
}

// Instance is a fully wired but not yet started application.
type Instance struct {
	App        *core.App
	Config     *config.Config
	ConfigPath string
	DataDir    string
	Logger     *slog.Logger
	Reloader   *reload.Handler

	core    *assistantCore
	closers []func(context.Context) error
}

// Setup loads and validates the configuration, then provisions every
// module and the assistant core. Nothing is started.
func Setup(params RunParams) (*Instance, error) {
	cfg, cfgPath, dataDir, err := loadConfig(params)
	if err != nil {
		return nil, err
	}

	w := params.LogWriter
	if w == nil {
		w = os.Stderr
	}
	redactor := security.NewRedactor()
	logger := security.NewLogger(w, params.LogLevel, redactor)

	inst := &Instance{
		Config:     cfg,
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		Logger:     logger,
	}
	ok := false
	defer func() {
		if !ok {
			if inst.App != nil {
				inst.App.Unload()
			}
			inst.close()
		}
	}()

	var audit *security.AuditLogger
	if cfg.Security.AuditEnabled() {
		f, err := os.OpenFile(filepath.Join(dataDir, auditFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		inst.closers = append(inst.closers, func(context.Context) error { return f.Close() })
		audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: f, Redactor: redactor})
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), cfg.Assistant.Telemetry, params.Version)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	inst.closers = append(inst.closers, shutdownTracing)

	metrics := telemetry.NewMetrics()

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(gateway.ServiceMetrics, metrics)
	appCtx.RegisterService(gateway.ServiceRateLimiter, security.NewRateLimiter(cfg.Security.RateLimits))
	if audit != nil {
		appCtx.RegisterService(gateway.ServiceAudit, audit)
	}

	application := core.NewApp(appCtx)
	inst.App = application

	backend, frontend := partitionModules(config.Resolve(cfg))
	if err := application.LoadModules(backend); err != nil {
		return nil, err
	}

	c, err := buildCore(appCtx, cfg, metrics, params.Version)
	if err != nil {
		return nil, err
	}
	inst.core = c
	application.Append(c)

	inst.Reloader = reload.NewHandler(application, logger, dataDir, cfgPath,
		reload.WithAudit(audit),
		reload.WithApplier(func(next *config.Config) error {
			quiet, err := next.Assistant.Quiet()
			if err != nil {
				return err
			}
			c.engine.SetQuietHours(quiet)
			return nil
		}),
	)
	appCtx.RegisterService(gateway.ServiceReloader, inst.Reloader)

	if err := application.LoadModules(frontend); err != nil {
		return nil, err
	}

	logger.Info("nudgeme configured",
		"version", params.Version,
		"config", cfgPath,
		"data_dir", dataDir,
		"modules", len(backend)+len(frontend),
	)
	ok = true
	return inst, nil
}

// loadConfig resolves, loads and validates the configuration and makes
// sure the data directory exists.
func loadConfig(params RunParams) (cfg *config.Config, cfgPath, dataDir string, err error) {
	cfgPath = params.ConfigPath
	if cfgPath == "" {
		if cfgPath, err = ResolveConfigPath(); err != nil {
			return nil, "", "", err
		}
	}
	if cfg, err = config.Load(cfgPath); err != nil {
		return nil, "", "", err
	}
	if err = config.Validate(cfg); err != nil {
		return nil, "", "", err
	}

	dataDir = params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err = os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", "", fmt.Errorf("creating data directory: %w", err)
	}
	return cfg, cfgPath, dataDir, nil
}

// Start starts every module in load order.
func (i *Instance) Start() error {
	return i.App.Start()
}

// Stop stops every module in reverse order and releases the audit log and
// tracer provider.
func (i *Instance) Stop() {
	i.App.Stop()
	i.close()
}

// Discard releases an instance that was set up but never started.
func (i *Instance) Discard() {
	i.App.Unload()
	i.close()
}

func (i *Instance) close() {
	ctx := context.Background()
	for _, fn := range slices.Backward(i.closers) {
		if err := fn(ctx); err != nil {
			i.Logger.Warn("shutdown cleanup failed", "error", err)
		}
	}
	i.closers = nil
}

// Run loads configuration, starts all modules, and blocks until SIGINT or
// SIGTERM is received. SIGHUP and file-change events trigger a live
// configuration reload.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, params)
}

// RunContext is Run with shutdown driven by ctx instead of signals. The
// service wrapper uses it so the service manager decides when to stop.
func RunContext(ctx context.Context, params RunParams) error {
	inst, err := Setup(params)
	if err != nil {
		return err
	}
	if err := inst.Start(); err != nil {
		inst.close()
		return err
	}
	logger := inst.Logger

	// --- signal handling ---
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	// --- file watcher ---
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: inst.ConfigPath})
	if err := watcher.Start(watchCtx); err != nil {
		logger.Warn("config watcher unavailable, reload with SIGHUP", "error", err)
	}
	defer watcher.Stop()

	// --- main event loop ---
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested", "cause", context.Cause(ctx))
			inst.Stop()
			logger.Info("shutdown complete")
			return nil
		case <-hupCh:
			logger.Info("SIGHUP received, reloading configuration")
			if err := inst.Reloader.Reload(watchCtx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := inst.Reloader.Reload(watchCtx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// partitionModules splits the configured IDs into those the assistant core
// depends on and the rest, adding the default storage and gateway modules
// when none is configured. The backend keeps the namespace order of backendNamespaces.
func partitionModules(ids []string) (backend, frontend []string) {
	byNamespace := make(map[string][]string)
	for _, id := range ids {
		ns := core.ModuleID(id).Namespace()
		if slices.Contains(backendNamespaces, ns) {
			byNamespace[ns] = append(byNamespace[ns], id)
			continue
		}
		frontend = append(frontend, id)
	}
	if !slices.ContainsFunc(frontend, func(id string) bool {
		return core.ModuleID(id).Namespace() == "gateway"
	}) {
		frontend = append(frontend, DefaultGatewayModule)
	}
	if len(byNamespace["storage"]) == 0 {
		byNamespace["storage"] = []string{DefaultStorageModule}
	}
	for _, ns := range backendNamespaces {
		backend = append(backend, byNamespace[ns]...)
	}
	return backend, frontend
}

// Package gateway serves the host UI API over HTTP: nudges, rules, memories,
// sessions and chat, plus a websocket notification stream and the metrics
// endpoint. It binds to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/nudgeme/nudgeme/internal/assistant"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/nudge"
	"github.com/nudgeme/nudgeme/internal/security"
	"github.com/nudgeme/nudgeme/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Service names the gateway resolves at Start.
const (
	ServiceEngine        = "nudge.engine"
	ServiceMemory        = "memory.store"
	ServiceConversations = "conversation.store"
	ServiceAssistant     = "assistant"
	ServiceMetrics       = "telemetry.metrics"
	ServiceAudit         = "security.audit"
	ServiceRateLimiter   = "security.ratelimiter"
	ServiceReloader      = "reload.handler"
	ServiceMCP           = "mcp.server"
	ServiceJobs          = "cron.scheduler"
)

// Reloader re-reads the configuration on demand.
type Reloader interface {
	Reload(ctx context.Context) error
}

// JobRunner runs a scheduled job out of band.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It exposes the host UI API, the
// notification event stream and the metrics endpoint.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	closing   chan struct{}
	closeOnce sync.Once

	// Resolved lazily at Start() via service registry.
	engine        *nudge.Engine
	memories      *memory.Store
	conversations *conversation.Store
	assistant     *assistant.Assistant
	metrics       *telemetry.Metrics
	audit         *security.AuditLogger
	limiter       *security.RateLimiter
	reloader      Reloader
	jobs          JobRunner
	mcp           *server.MCPServer
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.closing = make(chan struct{})
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolve()
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway auth not configured, API is open to anyone who can reach the bind address", "addr", g.config.Bind)
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}
	g.server.RegisterOnShutdown(g.closeStreams)

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// resolve binds optional services. Missing ones make their routes answer
// 503 instead of failing startup.
func (g *Gateway) resolve() {
	g.engine = lookup[*nudge.Engine](g.appCtx, ServiceEngine)
	g.memories = lookup[*memory.Store](g.appCtx, ServiceMemory)
	g.conversations = lookup[*conversation.Store](g.appCtx, ServiceConversations)
	g.assistant = lookup[*assistant.Assistant](g.appCtx, ServiceAssistant)
	g.metrics = lookup[*telemetry.Metrics](g.appCtx, ServiceMetrics)
	g.audit = lookup[*security.AuditLogger](g.appCtx, ServiceAudit)
	g.limiter = lookup[*security.RateLimiter](g.appCtx, ServiceRateLimiter)
	g.reloader = lookup[Reloader](g.appCtx, ServiceReloader)
	g.jobs = lookup[JobRunner](g.appCtx, ServiceJobs)
	g.mcp = lookup[*server.MCPServer](g.appCtx, ServiceMCP)
}

func lookup[T any](ctx *core.AppContext, name string) T {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero
	}
	v, ok := svc.(T)
	if !ok {
		return zero
	}
	return v
}

// closeStreams ends every open event stream. The HTTP server does not
// track hijacked websocket connections itself.
func (g *Gateway) closeStreams() {
	g.closeOnce.Do(func() { close(g.closing) })
}

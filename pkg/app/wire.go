package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nudgeme/nudgeme/internal/assistant"
	"github.com/nudgeme/nudgeme/internal/config"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/cron"
	"github.com/nudgeme/nudgeme/internal/gateway"
	"github.com/nudgeme/nudgeme/internal/kv"
	"github.com/nudgeme/nudgeme/internal/mcpserver"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/nudge"
	"github.com/nudgeme/nudgeme/internal/provider"
	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// assistantCore wraps the stores, the nudge engine, the chat pipeline and
// the scheduler so they join the App lifecycle after the storage and
// provider modules they depend on.
type assistantCore struct {
	memories      *memory.Store
	conversations *conversation.Store
	engine        *nudge.Engine
	assistant     *assistant.Assistant
	scheduler     *cron.Scheduler
	logger        *slog.Logger

	detach func()
}

func (c *assistantCore) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "assistant.core"}
}

func (c *assistantCore) Start() error {
	if err := c.engine.Start(); err != nil {
		return err
	}
	c.detach = c.assistant.Attach(c.engine)
	if err := c.scheduler.Start(); err != nil {
		c.detach()
		c.engine.Stop()
		return fmt.Errorf("starting scheduler: %w", err)
	}
	return nil
}

// Stop halts scheduling first so no tick runs against stores being
// flushed, then writes back anything a failed persist left behind.
func (c *assistantCore) Stop(ctx context.Context) error {
	var errs []error
	if err := c.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	c.engine.Stop()
	if c.detach != nil {
		c.detach()
	}
	if err := c.assistant.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.memories.Close(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.flush()...)
	return errors.Join(errs...)
}

func (c *assistantCore) flush() []error {
	var errs []error
	for name, f := range c.flushers() {
		if err := f.Flush(); err != nil {
			c.logger.Error("unsaved changes lost at shutdown", "store", name, "error", err)
			errs = append(errs, fmt.Errorf("flushing %s: %w", name, err))
		}
	}
	return errs
}

func (c *assistantCore) flushers() map[string]cron.Flusher {
	return map[string]cron.Flusher{
		"memory":       c.memories,
		"conversation": c.conversations,
		"nudge":        c.engine,
	}
}

// buildCore assembles the assistant from the services registered by the
// loaded modules and publishes its parts for the gateway. Must be called
// after LoadModules and before Start.
func buildCore(appCtx *core.AppContext, cfg *config.Config, metrics *telemetry.Metrics, version string) (*assistantCore, error) {
	logger := appCtx.Logger
	a := cfg.Assistant

	store, ok := lookup[kv.Store](appCtx, kv.ServiceName)
	if !ok {
		return nil, errors.New("app: no storage module loaded")
	}
	remote, _ := lookup[memory.Remote](appCtx, memory.RemoteServiceName)
	llm, ok := lookup[provider.Provider](appCtx, provider.ServiceName)
	if !ok {
		logger.Warn("no provider module configured, every reply will be an apology")
	}

	loc, err := a.Location()
	if err != nil {
		return nil, err
	}
	quiet, err := a.Quiet()
	if err != nil {
		return nil, err
	}
	opts, err := a.BuiltinOptions()
	if err != nil {
		return nil, err
	}

	mems, err := memory.New(store, memory.Config{
		MaxRecords:    a.Memory.MaxRecords,
		Remote:        remote,
		RemoteTimeout: a.Memory.RemoteTimeout,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}
	convs, err := conversation.New(store, conversation.Config{
		MaxSessions: a.Conversation.MaxSessions,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}

	opts.Activity = convs
	engine, err := nudge.NewEngine(nudge.Config{
		Rules: nudge.BuiltinRules(opts),
		Store: store,
		Surface: nudge.NewSurface(nudge.SurfaceConfig{
			Expiry:  a.Nudges.Expiry,
			Logger:  logger,
			Metrics: metrics,
		}),
		Location:   loc,
		QuietHours: quiet,
		UserName:   a.UserName,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nudge engine: %w", err)
	}

	var extractor memory.FactExtractor
	if a.Memory.Extract && llm != nil {
		extractor = memory.NewLLMExtractor(llm)
	}
	asst, err := assistant.New(assistant.Config{
		Provider:      llm,
		Conversations: convs,
		Memory:        mems,
		LogTurns:      a.Memory.LogTurns,
		Extractor:     extractor,
		UserName:      a.UserName,
		Persona:       a.Persona,
		Location:      loc,
		HistoryWindow: a.Conversation.HistoryWindow,
		MemoryRecords: a.Memory.ContextRecords,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}

	c := &assistantCore{
		memories:      mems,
		conversations: convs,
		engine:        engine,
		assistant:     asst,
		logger:        logger,
	}

	c.scheduler = cron.NewScheduler(logger, cron.WithLocation(loc))
	jobs := []cron.Job{
		&cron.NudgeTickJob{Engine: engine, Family: nudge.FamilyTimed, Logger: logger},
		&cron.NudgeTickJob{Engine: engine, Family: nudge.FamilyContextual, Logger: logger},
		&cron.StorageFlushJob{Stores: c.flushers(), Logger: logger},
	}
	for _, j := range jobs {
		if err := c.scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}

	appCtx.RegisterService(gateway.ServiceMemory, mems)
	appCtx.RegisterService(gateway.ServiceConversations, convs)
	appCtx.RegisterService(gateway.ServiceEngine, engine)
	appCtx.RegisterService(gateway.ServiceAssistant, asst)
	appCtx.RegisterService(gateway.ServiceJobs, c.scheduler)
	appCtx.RegisterService(gateway.ServiceMCP, mcpserver.New(mcpserver.Deps{
		Memory:        mems,
		Conversations: convs,
		Engine:        engine,
	}, version))

	return c, nil
}

// lookup returns the service registered under name if it has type T.
func lookup[T any](ctx *core.AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, false
	}
	v, ok := svc.(T)
	return v, ok
}

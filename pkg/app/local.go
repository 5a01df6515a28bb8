package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/nudgeme/nudgeme/internal/config"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/kv"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/security"
)

// Local gives command-line tools direct access to the stores without
// starting the daemon. Writes made while a daemon runs against the same
// data directory are overwritten by its next persist.
type Local struct {
	Memories      *memory.Store
	Conversations *conversation.Store

	app *core.App
}

// OpenLocal loads the configuration and opens only the storage and memory
// modules. Provider and gateway modules are never loaded.
func OpenLocal(params RunParams) (*Local, error) {
	cfg, _, dataDir, err := loadConfig(params)
	if err != nil {
		return nil, err
	}

	w := params.LogWriter
	if w == nil {
		w = io.Discard
	}
	logger := security.NewLogger(w, params.LogLevel, security.NewRedactor())

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	application := core.NewApp(appCtx)

	backend, _ := partitionModules(config.Resolve(cfg))
	var ids []string
	for _, id := range backend {
		if core.ModuleID(id).Namespace() != "provider" {
			ids = append(ids, id)
		}
	}
	if err := application.LoadModules(ids); err != nil {
		return nil, err
	}

	l, err := openStores(appCtx, cfg)
	if err != nil {
		application.Unload()
		return nil, err
	}
	l.app = application
	return l, nil
}

func openStores(appCtx *core.AppContext, cfg *config.Config) (*Local, error) {
	store, ok := lookup[kv.Store](appCtx, kv.ServiceName)
	if !ok {
		return nil, errors.New("app: no storage module loaded")
	}
	remote, _ := lookup[memory.Remote](appCtx, memory.RemoteServiceName)
	a := cfg.Assistant

	mems, err := memory.New(store, memory.Config{
		MaxRecords:    a.Memory.MaxRecords,
		Remote:        remote,
		RemoteTimeout: a.Memory.RemoteTimeout,
		Logger:        appCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}
	convs, err := conversation.New(store, conversation.Config{
		MaxSessions: a.Conversation.MaxSessions,
		Logger:      appCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}
	return &Local{Memories: mems, Conversations: convs}, nil
}

// Close drains pending remote writes and closes the storage modules.
func (l *Local) Close() error {
	err := l.Memories.Close()
	if ferr := l.Memories.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	if ferr := l.Conversations.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	// Storage modules have no Start, so Unload is what closes them.
	l.app.Unload()
	return err
}

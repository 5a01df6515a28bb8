// Package reload applies configuration changes to a running daemon, driven
// by file-system notifications or SIGHUP.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the path to the configuration file to watch.
	ConfigPath string

	// Debounce batches bursts of writes (editors often write several times
	// per save). Defaults to 500ms.
	Debounce time.Duration
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates the config file was written or replaced.
	EventModified EventType = "modified"
)

// Event represents a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher reports changes to a configuration file. It watches the parent
// directory so that atomic replace-by-rename saves are seen.
type Watcher struct {
	cfg    WatcherConfig
	events chan Event

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopped chan struct{}
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	cfg.ConfigPath = filepath.Clean(cfg.ConfigPath)
	return &Watcher{
		cfg:    cfg,
		events: make(chan Event, 1),
	}
}

// Start begins watching. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reload: creating watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.cfg.ConfigPath)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("reload: watching %s: %w", w.cfg.ConfigPath, err)
	}

	w.fsw = fsw
	w.stopped = make(chan struct{})
	go w.loop(ctx, fsw, w.stopped)
	return nil
}

// Events returns the channel of file change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and waits for its goroutine to exit. Safe to call
// multiple times and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, stopped := w.fsw, w.stopped
	w.fsw = nil
	w.mu.Unlock()

	if fsw == nil {
		return
	}
	_ = fsw.Close()
	<-stopped
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, stopped chan struct{}) {
	defer close(stopped)

	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				timer.Reset(w.cfg.Debounce)
			}
		case _, ok := <-fsw.Errors:
			if !ok {
				return
			}
		case <-timer.C:
			select {
			case w.events <- Event{Type: EventModified, ConfigPath: w.cfg.ConfigPath}:
			default:
				// A reload is already pending.
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.cfg.ConfigPath {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

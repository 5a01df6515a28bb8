package nudge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nudgeme/nudgeme/internal/kv"
	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// Sentinel errors returned by Engine.
var (
	ErrAlreadyStarted = errors.New("nudge: engine already started")
	ErrUnknownRule    = errors.New("nudge: unknown rule")
	ErrStorage        = errors.New("nudge: storage write failed")
)

// ErrRuleExecution wraps a failing or panicking rule condition or action.
// It is logged and never returned from Tick.
var ErrRuleExecution = errors.New("nudge: rule execution failed")

// Config controls an Engine.
type Config struct {
	Rules []Rule

	// Store persists rule state. Optional.
	Store kv.Store

	// Surface receives the winning notification. A default Surface is
	// created when nil.
	Surface *Surface

	// Location is the user's timezone. Defaults to time.Local.
	Location *time.Location

	// QuietHours suppresses scheduled ticks. Manual triggers still work.
	QuietHours *DailyWindow

	// UserName addresses manual nudges.
	UserName string

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = telemetry.Tracer()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Surface == nil {
		c.Surface = NewSurface(SurfaceConfig{Now: c.Now, Logger: c.Logger, Metrics: c.Metrics})
	}
}

type ruleEntry struct {
	rule    Rule
	enabled bool
	last    time.Time
}

// RuleStatus is a read-only view of a rule and its state.
type RuleStatus struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Family          Family        `json:"family"`
	Priority        Priority      `json:"priority"`
	Cooldown        time.Duration `json:"cooldown"`
	Daily           bool          `json:"daily"`
	Enabled         bool          `json:"enabled"`
	LastTriggeredAt *time.Time    `json:"last_triggered_at,omitempty"`
}

// Engine evaluates rules and surfaces at most one notification per tick.
// Every triggered rule runs its action and starts its cooldown; only the
// highest-priority one, earliest registered on ties, is shown.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	surface *Surface

	running atomic.Bool
	quiet   atomic.Pointer[DailyWindow]
	tickMu  sync.Mutex // serializes ticks and manual triggers

	mu    sync.RWMutex
	rules []*ruleEntry
	index map[string]*ruleEntry
	dirty bool
}

// NewEngine validates cfg.Rules and restores their persisted state.
// Unreadable persisted state is logged and ignored.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.defaults()
	e := &Engine{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "nudge"),
		surface: cfg.Surface,
		index:   make(map[string]*ruleEntry, len(cfg.Rules)),
	}
	e.quiet.Store(cfg.QuietHours)

	var states map[string]ruleState
	if cfg.Store != nil {
		var err error
		states, err = loadState(cfg.Store)
		if err != nil {
			e.logger.Warn("ignoring persisted rule state", "error", err)
		}
	}

	var errs []error
	for _, r := range cfg.Rules {
		if err := r.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := e.index[r.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.ID))
			continue
		}
		entry := &ruleEntry{rule: r, enabled: !r.Disabled}
		if st, ok := states[r.ID]; ok {
			entry.enabled = st.Enabled
			if st.LastTriggeredAt != nil {
				entry.last = *st.LastTriggeredAt
			}
		}
		e.rules = append(e.rules, entry)
		e.index[r.ID] = entry
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return e, nil
}

// Surface returns the notification surface the engine emits to.
func (e *Engine) Surface() *Surface { return e.surface }

// Start enables scheduled ticks.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.logger.Info("nudge engine started", "rules", len(e.rules))
	return nil
}

// Stop disables scheduled ticks and waits for an in-flight tick to finish.
// No notification is emitted by a tick after Stop returns.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.logger.Info("nudge engine stopped")
}

// SetQuietHours replaces the quiet-hours window. Nil turns quiet hours off.
func (e *Engine) SetQuietHours(w *DailyWindow) { e.quiet.Store(w) }

// Running reports whether the engine accepts scheduled ticks.
func (e *Engine) Running() bool { return e.running.Load() }

type triggered struct {
	entry *ruleEntry
	msg   Message
}

// Tick evaluates every eligible rule of family. It returns the surfaced
// notification, if any. Rule failures are logged and skipped.
func (e *Engine) Tick(ctx context.Context, family Family) (Notification, bool) {
	if !e.running.Load() {
		return Notification{}, false
	}

	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if !e.running.Load() {
		return Notification{}, false
	}

	ctx, span := e.cfg.Tracer.Start(ctx, "nudge.tick", trace.WithAttributes(
		attribute.String("nudge.family", string(family)),
	))
	defer span.End()

	now := e.cfg.Now().In(e.cfg.Location)
	if q := e.quiet.Load(); q != nil && q.Contains(now) {
		e.logger.Debug("tick skipped during quiet hours", "family", family)
		span.SetAttributes(attribute.Bool("nudge.quiet", true))
		return Notification{}, false
	}
	e.cfg.Metrics.TickRan(string(family))

	var fired []triggered
	for _, entry := range e.candidates(family, now) {
		ok, err := e.evaluate(ctx, entry.rule, now)
		if err != nil {
			e.ruleFailed(entry.rule, "condition", err)
			continue
		}
		if !ok {
			continue
		}
		msg, err := e.act(ctx, entry.rule, now)
		if err != nil {
			e.ruleFailed(entry.rule, "action", err)
			continue
		}
		fired = append(fired, triggered{entry: entry, msg: msg})
	}
	if len(fired) == 0 {
		return Notification{}, false
	}

	e.mu.Lock()
	for _, f := range fired {
		f.entry.last = now
		e.cfg.Metrics.RuleFired(f.entry.rule.ID)
		e.logger.Info("rule triggered", "rule", f.entry.rule.ID, "priority", f.entry.rule.Priority)
	}
	e.persistLocked()
	e.mu.Unlock()

	winner := fired[0]
	for _, f := range fired[1:] {
		if f.entry.rule.Priority > winner.entry.rule.Priority {
			winner = f
		}
	}
	span.SetAttributes(
		attribute.Int("nudge.triggered", len(fired)),
		attribute.String("nudge.winner", winner.entry.rule.ID),
	)

	if !e.running.Load() {
		return Notification{}, false
	}
	return e.surface.Emit(winner.msg), true
}

// TriggerManual surfaces a manual nudge immediately, bypassing rules,
// cooldowns and quiet hours.
func (e *Engine) TriggerManual(ctx context.Context) Notification {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	_, span := e.cfg.Tracer.Start(ctx, "nudge.manual")
	defer span.End()
	return e.surface.Emit(Build(TypeManual, e.cfg.UserName))
}

// SetEnabled toggles a rule.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	entry.enabled = enabled
	e.persistLocked()
	return nil
}

// Rules returns a snapshot of every rule in registration order.
func (e *Engine) Rules() []RuleStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]RuleStatus, 0, len(e.rules))
	for _, entry := range e.rules {
		st := RuleStatus{
			ID:          entry.rule.ID,
			Name:        entry.rule.Name,
			Description: entry.rule.Description,
			Family:      entry.rule.Family,
			Priority:    entry.rule.Priority,
			Cooldown:    entry.rule.Cooldown,
			Daily:       entry.rule.Daily,
			Enabled:     entry.enabled,
		}
		if !entry.last.IsZero() {
			last := entry.last
			st.LastTriggeredAt = &last
		}
		out = append(out, st)
	}
	return out
}

// Current returns the pending notification.
func (e *Engine) Current() (Notification, bool) { return e.surface.Current() }

// Accept resolves the pending notification as accepted.
func (e *Engine) Accept(id string) (Notification, error) { return e.surface.Accept(id) }

// Dismiss resolves the pending notification as dismissed.
func (e *Engine) Dismiss(id string) error { return e.surface.Dismiss(id) }

// Subscribe registers fn for notification events.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) { return e.surface.Subscribe(fn) }

// Flush retries persisting rule state after an earlier failure.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty || e.cfg.Store == nil {
		return nil
	}
	if err := saveState(e.cfg.Store, e.statesLocked()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	e.dirty = false
	return nil
}

// candidates returns the enabled rules of family that are out of cooldown
// and, for daily rules, have not fired yet today.
func (e *Engine) candidates(family Family, now time.Time) []*ruleEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*ruleEntry
	for _, entry := range e.rules {
		if entry.rule.Family != family || !entry.enabled {
			continue
		}
		if !entry.last.IsZero() {
			if now.Sub(entry.last) < entry.rule.Cooldown {
				continue
			}
			if entry.rule.Daily && sameDay(entry.last, now, e.cfg.Location) {
				continue
			}
		}
		out = append(out, entry)
	}
	return out
}

func (e *Engine) evaluate(ctx context.Context, r Rule, now time.Time) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Condition(ctx, now)
}

func (e *Engine) act(ctx context.Context, r Rule, now time.Time) (msg Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Action(ctx, now)
}

func (e *Engine) ruleFailed(r Rule, stage string, err error) {
	e.cfg.Metrics.RuleFailed(r.ID)
	e.logger.Warn("rule skipped",
		"rule", r.ID,
		"stage", stage,
		"error", fmt.Errorf("%w: %w", ErrRuleExecution, err),
	)
}

func (e *Engine) persistLocked() {
	if e.cfg.Store == nil {
		return
	}
	if err := saveState(e.cfg.Store, e.statesLocked()); err != nil {
		e.dirty = true
		e.cfg.Metrics.StorageFailed("nudge")
		e.logger.Warn("rule state write failed", "error", err)
		return
	}
	e.dirty = false
}

func (e *Engine) statesLocked() []ruleState {
	out := make([]ruleState, 0, len(e.rules))
	for _, entry := range e.rules {
		st := ruleState{ID: entry.rule.ID, Enabled: entry.enabled}
		if !entry.last.IsZero() {
			last := entry.last
			st.LastTriggeredAt = &last
		}
		out = append(out, st)
	}
	return out
}

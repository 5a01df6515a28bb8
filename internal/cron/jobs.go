package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nudgeme/nudgeme/internal/nudge"
)

// Ticker is the part of the nudge engine driven by the scheduler.
type Ticker interface {
	Tick(ctx context.Context, family nudge.Family) (nudge.Notification, bool)
}

// Default schedules for the two rule families. Timed rules match two-minute
// windows, so they are evaluated every minute.
const (
	TimedSchedule      = "* * * * *"
	ContextualSchedule = "*/5 * * * *"
	FlushSchedule      = "*/2 * * * *"
)

// NudgeTickJob evaluates one family of nudge rules.
type NudgeTickJob struct {
	Engine       Ticker
	Family       nudge.Family
	Logger       *slog.Logger
	ScheduleExpr string // empty = family default
}

// Compile-time interface check.
var _ Job = (*NudgeTickJob)(nil)

// Name implements Job.
func (j *NudgeTickJob) Name() string {
	return "nudge_" + string(j.Family)
}

// Schedule implements Job.
func (j *NudgeTickJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	if j.Family == nudge.FamilyContextual {
		return ContextualSchedule
	}
	return TimedSchedule
}

// Run performs one tick. Rule failures are handled by the engine.
func (j *NudgeTickJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: nudge tick cancelled: %w", ctx.Err())
	}
	if n, ok := j.Engine.Tick(ctx, j.Family); ok {
		j.Logger.Debug("cron: nudge surfaced", "family", j.Family, "type", n.Type, "id", n.ID)
	}
	return nil
}

// Flusher is a store that may hold writes that failed to persist.
type Flusher interface {
	Flush() error
}

// StorageFlushJob retries persistence for stores left dirty by a failed write.
type StorageFlushJob struct {
	Stores       map[string]Flusher
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/2 * * * *"
}

// Compile-time interface check.
var _ Job = (*StorageFlushJob)(nil)

// Name implements Job.
func (j *StorageFlushJob) Name() string { return "storage_flush" }

// Schedule implements Job.
func (j *StorageFlushJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return FlushSchedule
}

// Run flushes every store and joins their errors.
func (j *StorageFlushJob) Run(ctx context.Context) error {
	var errs []error
	for name, store := range j.Stores {
		if ctx.Err() != nil {
			return fmt.Errorf("cron: storage flush cancelled: %w", ctx.Err())
		}
		if err := store.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		j.Logger.Warn("cron: storage still unavailable", "stores", len(errs))
		return errors.Join(errs...)
	}
	return nil
}

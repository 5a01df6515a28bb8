package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/nudgeme/nudgeme/internal/cron"
	"github.com/nudgeme/nudgeme/internal/cron/crontest"
	"github.com/nudgeme/nudgeme/internal/nudge"
)

func TestNudgeTickJob_NameAndSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		family   nudge.Family
		override string
		name     string
		schedule string
	}{
		{nudge.FamilyTimed, "", "nudge_timed", "* * * * *"},
		{nudge.FamilyContextual, "", "nudge_contextual", "*/5 * * * *"},
		{nudge.FamilyContextual, "*/15 * * * *", "nudge_contextual", "*/15 * * * *"},
	}
	for _, tt := range tests {
		j := &cron.NudgeTickJob{Family: tt.family, ScheduleExpr: tt.override, Logger: slog.Default()}
		if j.Name() != tt.name {
			t.Errorf("Name() = %q, want %q", j.Name(), tt.name)
		}
		if j.Schedule() != tt.schedule {
			t.Errorf("Schedule() = %q, want %q", j.Schedule(), tt.schedule)
		}
	}
}

func TestNudgeTickJob_Run(t *testing.T) {
	t.Parallel()

	ticker := &crontest.MockTicker{Fire: true, Result: nudge.Notification{ID: "n1"}}
	j := &cron.NudgeTickJob{Engine: ticker, Family: nudge.FamilyContextual, Logger: slog.Default()}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ticker.Families(); len(got) != 1 || got[0] != nudge.FamilyContextual {
		t.Errorf("ticked families = %v", got)
	}
}

func TestNudgeTickJob_Cancelled(t *testing.T) {
	t.Parallel()

	ticker := &crontest.MockTicker{}
	j := &cron.NudgeTickJob{Engine: ticker, Family: nudge.FamilyTimed, Logger: slog.Default()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(ticker.Families()) != 0 {
		t.Error("cancelled job should not tick")
	}
}

func TestStorageFlushJob_Run(t *testing.T) {
	t.Parallel()

	ok := &crontest.MockFlusher{}
	broken := &crontest.MockFlusher{Err: errors.New("disk full")}
	j := &cron.StorageFlushJob{
		Stores: map[string]cron.Flusher{"memory": ok, "conversation": broken},
		Logger: slog.Default(),
	}

	if j.Name() != "storage_flush" || j.Schedule() != "*/2 * * * *" {
		t.Errorf("Name/Schedule = %q/%q", j.Name(), j.Schedule())
	}

	err := j.Run(context.Background())
	if err == nil {
		t.Fatal("expected the broken store's error")
	}
	if ok.Calls() != 1 || broken.Calls() != 1 {
		t.Errorf("flush calls = %d/%d, want 1/1", ok.Calls(), broken.Calls())
	}

	broken.Err = nil
	if err := j.Run(context.Background()); err != nil {
		t.Errorf("Run after recovery: %v", err)
	}
}

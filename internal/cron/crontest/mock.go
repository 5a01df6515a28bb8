// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/nudgeme/nudgeme/internal/cron"
	"github.com/nudgeme/nudgeme/internal/nudge"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockTicker is a test double for cron.Ticker that records families.
type MockTicker struct {
	Result nudge.Notification
	Fire   bool

	mu       sync.Mutex
	families []nudge.Family
}

// Compile-time interface check.
var _ cron.Ticker = (*MockTicker)(nil)

// Tick implements cron.Ticker.
func (m *MockTicker) Tick(_ context.Context, family nudge.Family) (nudge.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.families = append(m.families, family)
	return m.Result, m.Fire
}

// Families returns the families ticked so far.
func (m *MockTicker) Families() []nudge.Family {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]nudge.Family, len(m.families))
	copy(out, m.families)
	return out
}

// MockFlusher is a test double for cron.Flusher.
type MockFlusher struct {
	Err   error
	calls int
	mu    sync.Mutex
}

// Flush implements cron.Flusher.
func (m *MockFlusher) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Err
}

// Calls returns the number of Flush calls.
func (m *MockFlusher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

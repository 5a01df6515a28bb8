package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by RunNow for an unregistered job name.
var ErrUnknownJob = errors.New("cron: unknown job")

// ErrJobBusy is returned by RunNow when the job is already running.
var ErrJobBusy = errors.New("cron: job still running")

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex to prevent parallel execution
// of the same job (uses TryLock, atomic with no race).
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	jobs     []Job
	byName   map[string]Job
	locks    map[string]*sync.Mutex
	logger   *slog.Logger
	location *time.Location
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation evaluates schedules in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		byName:   make(map[string]Job),
		locks:    make(map[string]*sync.Mutex),
		logger:   logger,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.byName[name] = j
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name()
	}
	return names
}

// Start initializes the cron scheduler and begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser), cron.WithLocation(s.location))

	for _, job := range s.jobs {
		lock := s.locks[job.Name()]
		_, err := s.cron.AddFunc(job.Schedule(), func() {
			// If the previous tick is still running, skip this one.
			if !lock.TryLock() {
				s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
				return
			}
			defer lock.Unlock()
			_ = s.run(ctx, job)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs), "location", s.location.String())
	return nil
}

// RunNow runs a registered job immediately under the same overlap guard
// as scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.byName[name]
	lock := s.locks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if !lock.TryLock() {
		return fmt.Errorf("%w: %q", ErrJobBusy, name)
	}
	defer lock.Unlock()
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	s.logger.Debug("cron: job started", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", job.Name())
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		// Wait for running jobs to complete.
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}

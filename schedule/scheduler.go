// Package schedule decides when full crawls run: on an interval, once at
// startup when the store is empty, and on manual triggers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/aluiziolira/go-ingest-books/config"
	"github.com/aluiziolira/go-ingest-books/models"
)

// Job identifiers in the registry.
const (
	JobInterval  = "interval_crawl"
	JobBootstrap = "bootstrap_crawl"
	JobManual    = "manual_crawl"
)

// ErrNotRunning is returned by TriggerCrawl before Start or after Stop.
var ErrNotRunning = errors.New("schedule: scheduler not running")

// Runner performs one full crawl.
type Runner interface {
	RunFullCrawl(ctx context.Context) (*models.CrawlRun, error)
}

// CategoryCounter reports how many categories are stored.
type CategoryCounter interface {
	CountCategories(ctx context.Context) (int, error)
}

// JobInfo describes a scheduled job.
type JobInfo struct {
	ID      string    `json:"id"`
	NextRun time.Time `json:"next_run"`
}

// Stats counts scheduler activity since Start.
type Stats struct {
	Started      int64 `json:"runs_started"`
	Completed    int64 `json:"runs_completed"`
	Aborted      int64 `json:"runs_aborted"`
	LeaseSkipped int64 `json:"runs_lease_skipped"`
	Coalesced    int64 `json:"triggers_coalesced"`
}

// Scheduler owns the job registry and runs crawls on a gocron scheduler.
type Scheduler struct {
	runner  Runner
	counter CategoryCounter
	lease   Lease

	interval       time.Duration
	bootstrapDelay time.Duration
	triggerDelay   time.Duration
	leaseTTL       time.Duration

	logger *slog.Logger

	mu        sync.Mutex
	cron      gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	manualID  uuid.UUID
	manualGen uint64

	started      atomic.Int64
	completed    atomic.Int64
	aborted      atomic.Int64
	leaseSkipped atomic.Int64
	coalesced    atomic.Int64
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLease makes every run acquire lease first; runs that cannot are skipped.
func WithLease(lease Lease) Option {
	return func(s *Scheduler) {
		s.lease = lease
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a stopped scheduler with timings from cfg.
func New(cfg *config.Config, runner Runner, counter CategoryCounter, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:         runner,
		counter:        counter,
		interval:       cfg.CrawlInterval,
		bootstrapDelay: cfg.BootstrapDelay,
		triggerDelay:   cfg.TriggerDelay,
		leaseTTL:       cfg.LeaseTTL,
		logger:         slog.Default().With(slog.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the interval job and the one-shot bootstrap job. Jobs run until
// ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLogger(s.logger),
		gocron.WithStopTimeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)

	// A slow crawl pushes the next interval tick out instead of stacking runs.
	_, err = cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.execute(runCtx, JobInterval) }),
		gocron.WithName(JobInterval),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err == nil {
		_, err = cron.NewJob(
			oneTimeAfter(s.bootstrapDelay),
			gocron.NewTask(func() {
				if _, err := s.RunBootstrapIfEmpty(runCtx); err != nil {
					s.logger.Error("bootstrap check failed", slog.Any("error", err))
				}
			}),
			gocron.WithName(JobBootstrap),
		)
	}
	if err != nil {
		cancel()
		_ = cron.Shutdown()
		return fmt.Errorf("register jobs: %w", err)
	}

	cron.Start()
	s.cron, s.ctx, s.cancel = cron, runCtx, cancel
	s.running = true

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("bootstrap_delay", s.bootstrapDelay),
		slog.Bool("lease", s.lease != nil),
	)
	return nil
}

// Stop removes every job, cancels running crawls and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cron := s.cron
	s.cancel()
	s.mu.Unlock()

	if err := cron.Shutdown(); err != nil {
		s.logger.Warn("scheduler shutdown", slog.Any("error", err))
	}
	s.logger.Info("scheduler stopped")
}

// TriggerCrawl schedules a crawl after the trigger delay and returns at once.
// A trigger that is still pending is replaced, so bursts collapse into one run.
func (s *Scheduler) TriggerCrawl() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	if s.manualID != uuid.Nil {
		if err := s.cron.RemoveJob(s.manualID); err == nil {
			s.coalesced.Add(1)
		}
		s.manualID = uuid.Nil
	}

	s.manualGen++
	gen := s.manualGen
	ctx := s.ctx
	j, err := s.cron.NewJob(
		oneTimeAfter(s.triggerDelay),
		gocron.NewTask(func() {
			s.mu.Lock()
			if gen != s.manualGen {
				s.mu.Unlock()
				return
			}
			s.manualID = uuid.Nil
			s.mu.Unlock()
			s.execute(ctx, JobManual)
		}),
		gocron.WithName(JobManual),
	)
	if err != nil {
		return fmt.Errorf("schedule manual crawl: %w", err)
	}
	s.manualID = j.ID()

	s.logger.Info("crawl triggered", slog.Duration("delay", s.triggerDelay))
	return nil
}

// RunBootstrapIfEmpty runs a full crawl only when no category is stored yet.
// A populated store means no network request and no write.
func (s *Scheduler) RunBootstrapIfEmpty(ctx context.Context) (bool, error) {
	n, err := s.counter.CountCategories(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("store already populated, skipping bootstrap crawl", slog.Int("categories", n))
		return false, nil
	}
	s.execute(ctx, JobBootstrap)
	return true, nil
}

// Jobs lists pending jobs ordered by next run.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	cron, running := s.cron, s.running
	s.mu.Unlock()
	if !running {
		return []JobInfo{}
	}

	jobs := cron.Jobs()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		next, err := j.NextRun()
		if err != nil || next.IsZero() {
			continue
		}
		out = append(out, JobInfo{ID: j.Name(), NextRun: next})
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].NextRun.Before(out[k].NextRun)
	})
	return out
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Started:      s.started.Load(),
		Completed:    s.completed.Load(),
		Aborted:      s.aborted.Load(),
		LeaseSkipped: s.leaseSkipped.Load(),
		Coalesced:    s.coalesced.Load(),
	}
}

// Running reports whether the scheduler is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func oneTimeAfter(delay time.Duration) gocron.JobDefinition {
	if delay <= 0 {
		return gocron.OneTimeJob(gocron.OneTimeJobStartImmediately())
	}
	return gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay)))
}

func (s *Scheduler) execute(ctx context.Context, jobID string) {
	logger := s.logger.With(slog.String("job", jobID))

	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx, s.leaseTTL)
		if err != nil {
			logger.Error("lease acquire failed, skipping crawl", slog.Any("error", err))
			s.leaseSkipped.Add(1)
			return
		}
		if !ok {
			logger.Info("lease held elsewhere, skipping crawl")
			s.leaseSkipped.Add(1)
			return
		}
		defer release()
	}

	s.started.Add(1)
	run, err := s.runner.RunFullCrawl(ctx)
	if run != nil && run.Fatal() {
		s.aborted.Add(1)
		logger.Error("scheduled crawl aborted", slog.String("run_id", run.ID), slog.Any("error", err))
		return
	}
	s.completed.Add(1)
	if err != nil {
		logger.Warn("scheduled crawl ended early", slog.Any("error", err))
	}
}

// Package scheduler drives the periodic maintenance jobs of the engine:
// usage recalculation, alert notification dispatch and retention cleanup.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Jobs is the work the scheduler triggers. The engine implements it.
type Jobs interface {
	// RecalculateAll repairs the counters of every billable tenant.
	RecalculateAll(ctx context.Context) error
	// DispatchNotifications sends due alert notifications.
	DispatchNotifications(ctx context.Context) error
	// Cleanup purges usage records and resolved alerts older than before.
	Cleanup(ctx context.Context, before time.Time) error
}

// Config holds the job intervals. A zero or negative interval disables
// that job.
type Config struct {
	RecalculateInterval time.Duration `json:"recalculate_interval" mapstructure:"recalculate_interval" yaml:"recalculate_interval"`
	NotifyInterval      time.Duration `json:"notify_interval" mapstructure:"notify_interval" yaml:"notify_interval"`
	CleanupInterval     time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	// Retention is how long usage records and resolved alerts are kept.
	Retention time.Duration `json:"retention" mapstructure:"retention" yaml:"retention"`
	// JobTimeout bounds a single job run.
	JobTimeout time.Duration `json:"job_timeout" mapstructure:"job_timeout" yaml:"job_timeout"`
}

// DefaultConfig returns daily recalculation, hourly notification, weekly
// cleanup and ninety days of retention.
func DefaultConfig() Config {
	return Config{
		RecalculateInterval: 24 * time.Hour,
		NotifyInterval:      time.Hour,
		CleanupInterval:     7 * 24 * time.Hour,
		Retention:           90 * 24 * time.Hour,
		JobTimeout:          30 * time.Minute,
	}
}

// Scheduler runs each enabled job on its own ticker.
type Scheduler struct {
	jobs   Jobs
	config Config
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler.
func New(jobs Jobs, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   jobs,
		config: cfg,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config { return s.config }

// Start launches the job loops. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.loop(ctx, "recalculate", s.config.RecalculateInterval, s.jobs.RecalculateAll)
	s.loop(ctx, "notify", s.config.NotifyInterval, s.jobs.DispatchNotifications)
	if s.config.Retention > 0 {
		s.loop(ctx, "cleanup", s.config.CleanupInterval, func(ctx context.Context) error {
			return s.jobs.Cleanup(ctx, s.clock.Now().Add(-s.config.Retention))
		})
	}

	s.logger.Info("scheduler started",
		"recalculate_interval", s.config.RecalculateInterval,
		"notify_interval", s.config.NotifyInterval,
		"cleanup_interval", s.config.CleanupInterval,
		"retention", s.config.Retention,
	)
}

// Stop cancels the job loops and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, job func(context.Context) error) {
	if every <= 0 {
		s.logger.Debug("scheduler job disabled", "job", name)
		return
	}

	ticker := s.clock.NewTicker(every)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.run(ctx, name, job)
			}
		}
	}()
}

func (s *Scheduler) run(ctx context.Context, name string, job func(context.Context) error) {
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	start := s.clock.Now()
	if err := job(ctx); err != nil {
		s.logger.Warn("scheduler job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("scheduler job finished", "job", name, "elapsed", s.clock.Since(start))
}

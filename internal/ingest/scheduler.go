package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner runs one ingest pass over a scope. *Orchestrator satisfies it.
type Runner interface {
	Ingest(ctx context.Context, scope Scope) (Result, error)
}

// SchedulerConfig describes the recurring ingest passes: when they run and
// which scopes each pass covers. Cron wins when both cron and interval are
// set.
type SchedulerConfig struct {
	Cron         string
	Interval     time.Duration
	Window       time.Duration
	RunOnStart   bool
	Cities       []string
	Statuses     []string
	PropertyType string
}

// Scheduler periodically re-ingests every configured city. Passes are
// best-effort: one failing city is logged and the loop moves to the next,
// since upserts are idempotent and the next tick covers the gap.
type Scheduler struct {
	cfg    SchedulerConfig
	runner Runner
	logger *slog.Logger

	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}

	now func() time.Time
}

// NewScheduler creates a scheduler over the given runner.
func NewScheduler(cfg SchedulerConfig, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start registers the schedule and returns. Passes keep firing until Stop
// is called or the context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.RunOnStart {
		go s.RunAll(ctx)
	}

	if s.cfg.Cron != "" {
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			s.RunAll(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.cfg.Cron, err)
		}

		s.cron.Start()
		s.logger.Info("Ingest schedule started",
			slog.String("cron", s.cfg.Cron),
			slog.Int("cities", len(s.cfg.Cities)),
		)

		return nil
	}

	if s.cfg.Interval > 0 {
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.RunAll(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		s.logger.Info("Ingest schedule started",
			slog.Duration("interval", s.cfg.Interval),
			slog.Int("cities", len(s.cfg.Cities)),
		)

		return nil
	}

	return fmt.Errorf("no ingest schedule configured: set cron or interval")
}

// Stop halts the schedule. A pass already in flight finishes on its own.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)

	s.logger.Info("Ingest schedule stopped")
}

// RunAll ingests every configured city once, scoped to records modified
// within the configured window ending now.
func (s *Scheduler) RunAll(ctx context.Context) {
	var since time.Time
	if s.cfg.Window > 0 {
		since = s.now().Add(-s.cfg.Window)
	}

	for _, city := range s.cfg.Cities {
		if ctx.Err() != nil {
			s.logger.Warn("Ingest pass interrupted, skipping remaining cities",
				slog.String("error", ctx.Err().Error()),
			)
			return
		}

		scope := Scope{
			City:          city,
			Statuses:      s.cfg.Statuses,
			PropertyType:  s.cfg.PropertyType,
			ModifiedSince: since,
		}

		res, err := s.runner.Ingest(ctx, scope)
		if err != nil {
			s.logger.Error("Scheduled ingest pass failed",
				slog.String("scope", scope.Describe()),
				slog.Any("error", err),
				slog.Int("written", res.Written),
				slog.Int("skipped", res.Skipped),
			)
			continue
		}

		s.logger.Info("Scheduled ingest pass complete",
			slog.String("city", city),
			slog.Int("fetched", res.Fetched),
			slog.Int("written", res.Written),
			slog.Int("skipped", res.Skipped),
			slog.Int("dropped", res.Dropped),
		)
	}
}

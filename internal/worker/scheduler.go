// Package worker schedules the periodic maintenance jobs: DLQ retry and backlog classification.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job performs one pass and reports how many items it touched.
type Job func(ctx context.Context) (int64, error)

// Scheduler wraps cron-based jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a Scheduler evaluating specs in loc. Overlapping runs of the same job are skipped.
func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule registers job under name. An empty spec disables the job and returns false.
func (s *Scheduler) Schedule(name, spec string, job Job) (bool, error) {
	if spec == "" {
		s.logger.Info("job disabled", "job", name)
		return false, nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return false, fmt.Errorf("scheduling %s: %w", name, err)
	}
	s.logger.Info("job scheduled", "job", name, "spec", spec)
	return true, nil
}

func (s *Scheduler) run(name string, job Job) {
	start := time.Now()
	n, err := job(s.ctx)
	if err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("job finished", "job", name, "processed", n, "duration", time.Since(start))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

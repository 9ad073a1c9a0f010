package service

import (
	"context"
	"time"

	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// ScanTask is one periodic scan run by the scheduler.
type ScanTask struct {
	Name string
	Run  func(context.Context) error
}

// Scheduler runs the registered scans on a fixed interval: the stock and
// expiry alert re-evaluation, plus the delayed-order detection registered
// by the procurement side.
type Scheduler struct {
	tasks    []ScanTask
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
}

// NewScheduler creates a new scan scheduler
func NewScheduler(interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		logger:   log,
	}
}

// Register adds a scan task. Not safe to call after Start.
func (s *Scheduler) Register(name string, run func(context.Context) error) {
	s.tasks = append(s.tasks, ScanTask{Name: name, Run: run})
}

// Start starts the scheduler in a background goroutine. It runs one cycle
// immediately, then on every tick.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Int("tasks", len(s.tasks)).Msg("scan scheduler started")

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("scan scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()

	for _, task := range s.tasks {
		if err := task.Run(ctx); err != nil {
			s.logger.Error().Err(err).Str("task", task.Name).Msg("scan task failed")
		}
	}

	s.logger.Info().Dur("duration", time.Since(start)).Msg("scan cycle completed")
}

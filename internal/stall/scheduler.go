package stall

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the scheduler sweeps.
const DefaultInterval = 5 * time.Minute

// Scheduler runs Detector.Sweep periodically.
type Scheduler struct {
	detector *Detector
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler returns a scheduler. A non-positive interval uses DefaultInterval.
func NewScheduler(detector *Detector, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{detector: detector, interval: interval, logger: logger}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("stall scheduler started",
		"interval", s.interval.String(),
		"timeout", s.detector.Timeout().String(),
	)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stall scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()
	marked, err := s.detector.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("stall sweep failed", "error", err)
		}
		return
	}
	if marked > 0 {
		s.logger.Warn("stalled import jobs marked as failed", "count", marked, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.logger.Debug("stall sweep completed", "count", 0, "duration_ms", time.Since(start).Milliseconds())
}

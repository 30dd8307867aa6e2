package optimizer

import (
	"context"
	"time"

	"github.com/sandevgo/membank/pkg/log"
)

// Scheduler re-runs the full optimization pass on a fixed interval. A failed
// pass is logged and the schedule continues; background optimization is
// never fatal.
type Scheduler struct {
	optimizer *Optimizer
	interval  time.Duration
}

func NewScheduler(o *Optimizer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{optimizer: o, interval: interval}
}

func (s *Scheduler) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", s.interval).Msg("starting optimization scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.optimizer.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("scheduled optimization pass failed")
			}
		}
	}
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	return nil
}

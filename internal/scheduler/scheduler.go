// Package scheduler drives the recurring matchmaking tick.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler invokes a tick function at a fixed interval, independent of
// queue activity. Ticks never overlap: if one is still processing when the
// interval fires again, that firing is skipped, not queued.
type Scheduler struct {
	interval time.Duration
	tick     func()
	inFlight atomic.Bool
	log      *zap.Logger
}

func New(interval time.Duration, tick func(), log *zap.Logger) *Scheduler {
	return &Scheduler{interval: interval, tick: tick, log: log}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("matchmaking scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("matchmaking scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug("tick still in flight, skipping")
		return
	}
	defer s.inFlight.Store(false)
	s.tick()
}

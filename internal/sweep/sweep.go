// Package sweep periodically closes expired review leases that no lock call
// has touched since they ran out.
package sweep

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner is satisfied by *judging.LockManager.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Recorder is satisfied by *metrics.Metrics.
type Recorder interface {
	SweepRun(err error)
}

type Sweeper struct {
	locks    Cleaner
	interval time.Duration
	log      *slog.Logger
	rec      Recorder
}

func New(locks Cleaner, interval time.Duration, log *slog.Logger, rec Recorder) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{locks: locks, interval: interval, log: log, rec: rec}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		_, _ = s.Once(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (s *Sweeper) Once(ctx context.Context) (int, error) {
	n, err := s.locks.CleanupExpired(ctx)
	if s.rec != nil {
		s.rec.SweepRun(err)
	}
	switch {
	case err != nil && ctx.Err() == nil:
		s.log.Error("lock sweep failed", "err", err)
	case n > 0:
		s.log.Debug("lock sweep", "closed", n)
	}
	return n, err
}

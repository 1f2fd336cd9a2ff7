package presence

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SweepFunc removes stale viewers and returns how many were removed.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper runs a SweepFunc on a fixed interval.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. A nil logger discards output.
func NewSweeper(sweep SweepFunc, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{sweep: sweep, interval: interval, logger: logger}
}

// Run sweeps until ctx is done. It returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("presence sweep failed",
					"module", "presence",
					"operation", "sweep",
					"outcome", "error",
					"error", err,
				)
				continue
			}
			if removed > 0 {
				s.logger.Info("presence sweep removed stale viewers",
					"module", "presence",
					"operation", "sweep",
					"outcome", "success",
					"removed", removed,
				)
			}
		}
	}
}

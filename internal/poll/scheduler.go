// Package poll re-fetches jobs and credentials on a fixed cadence. It is the
// disconnect-tolerant fallback to the event stream: even when the stream is
// silently dead, the display keeps advancing on the next tick.
package poll

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval matches the reference cadence of the original console.
const DefaultInterval = 2500 * time.Millisecond

// Reconciler is the refresh operation driven on every tick.
type Reconciler interface {
	ReconcileActive(ctx context.Context) error
}

// Scheduler ticks until its context is cancelled. Cycle failures are
// swallowed: a transient blip must never interrupt the operator, and only
// the next successful cycle matters.
type Scheduler struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

// NewScheduler wires a scheduler; interval <= 0 uses DefaultInterval.
func NewScheduler(r Reconciler, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{reconciler: r, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reconciler.ReconcileActive(ctx); err != nil {
				s.logger.Debug("poll cycle failed", "error", err)
			}
		}
	}
}

// Package retention schedules periodic alert cleanup.
package retention

import (
	"context"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/logging"
)

// Cleaner deletes alerts older than the window. Satisfied by
// service.AlertService.
type Cleaner interface {
	Cleanup(ctx context.Context, window time.Duration) (int64, error)
}

// Janitor invokes cleanup on a fixed interval until its context is
// cancelled. Cleanup runs concurrently with ingestion; the store needs no
// global lock for it.
type Janitor struct {
	cleaner  Cleaner
	window   time.Duration
	interval time.Duration
	logger   *logging.Logger
}

// NewJanitor creates a janitor with the given retention window and run
// interval.
func NewJanitor(cleaner Cleaner, window, interval time.Duration, logger *logging.Logger) *Janitor {
	return &Janitor{
		cleaner:  cleaner,
		window:   window,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, invoking cleanup every interval.
// A failed run is logged and the next tick tries again.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.InfoContext(ctx, "retention janitor started",
		"window", j.window.String(),
		"interval", j.interval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.InfoContext(ctx, "retention janitor stopped")
			return
		case <-ticker.C:
			if _, err := j.cleaner.Cleanup(ctx, j.window); err != nil {
				j.logger.ErrorContext(ctx, "retention cleanup failed", logging.Err(err))
			}
		}
	}
}

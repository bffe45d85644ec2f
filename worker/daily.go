// Package worker runs scheduled jobs inside the API process.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Daily runs Job once a day at Hour:00 in Location until the context is cancelled.
type Daily struct {
	Name     string
	Hour     int
	Location *time.Location
	Job      func(ctx context.Context) error
	Logger   *slog.Logger

	now func() time.Time
}

// nextRun returns the first Hour:00 in loc strictly after now.
func nextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

func (d *Daily) Run(ctx context.Context) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	now := d.now
	if now == nil {
		now = time.Now
	}

	for {
		next := nextRun(now(), d.Hour, loc)
		logger.Info("daily job scheduled", slog.String("job", d.Name), slog.Time("next_run", next))

		timer := time.NewTimer(next.Sub(now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("daily job stopped", slog.String("job", d.Name))
			return
		case <-timer.C:
		}

		start := time.Now()
		if err := d.Job(ctx); err != nil {
			logger.Error("daily job failed", slog.String("job", d.Name), slog.String("error", err.Error()))
			continue
		}
		logger.Info("daily job finished", slog.String("job", d.Name), slog.Duration("elapsed", time.Since(start)))
	}
}

package accesslog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/rhuss/kette/pkg/observability"
)

// DefaultSchedule runs retention daily at 02:00 UTC.
const DefaultSchedule = "0 2 * * *"

// Retention prunes records older than a maximum age on a cron schedule.
type Retention struct {
	store    Store
	schedule string
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRetention validates the cron expression and returns a scheduler.
// An empty schedule means DefaultSchedule.
func NewRetention(store Store, schedule string, maxAge time.Duration, logger *slog.Logger) (*Retention, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid retention schedule %q", schedule)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Next returns the first scheduled run strictly after t.
func (r *Retention) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(r.schedule, t, false)
}

// RunOnce prunes everything older than the maximum age now.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("pruning access log: %w", err)
	}
	observability.AccessLogPrunedTotal.Add(float64(n))
	r.logger.Info("access log retention run", "pruned", n, "cutoff", cutoff)
	return n, nil
}

// Run blocks, pruning on every scheduled tick, until ctx is done. Failed
// runs are logged and retried at the next tick.
func (r *Retention) Run(ctx context.Context) error {
	r.logger.Info("access log retention started", "schedule", r.schedule, "max_age", r.maxAge)
	for {
		next, err := r.Next(r.now())
		if err != nil {
			return fmt.Errorf("computing next retention tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("access log retention stopped")
			return nil
		case <-timer.C:
		}

		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("access log retention failed", "error", err)
		}
	}
}

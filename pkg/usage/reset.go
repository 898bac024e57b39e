package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/crmgate/pkg/observability"
)

// ResetSchedule fires at 00:00 on the first day of every month. Schedulers
// must run in UTC to line up with Period boundaries.
const ResetSchedule = "0 0 1 * *"

// Resetter discards counters from closed periods at the start of each month.
type Resetter struct {
	store   CounterStore
	logger  *observability.Logger
	now     func() time.Time
	timeout time.Duration

	// OnReset, if set, receives the number of counters each reset purged.
	OnReset func(purged int)
}

// NewResetter creates a resetter for store.
func NewResetter(store CounterStore, logger *observability.Logger) *Resetter {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Resetter{store: store, logger: logger, now: time.Now, timeout: time.Minute}
}

// WithClock overrides the time source.
func (r *Resetter) WithClock(now func() time.Time) *Resetter {
	r.now = now
	return r
}

// NewScheduler returns a cron scheduler in UTC for monthly jobs.
func NewScheduler() *cron.Cron {
	return cron.New(cron.WithLocation(time.UTC))
}

// Schedule registers the monthly reset on c.
func (r *Resetter) Schedule(c *cron.Cron) (cron.EntryID, error) {
	id, err := c.AddFunc(ResetSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.Reset(ctx); err != nil {
			r.logger.WithError(err).Error("Monthly usage reset failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule usage reset: %w", err)
	}
	return id, nil
}

// Reset purges every counter from before the current period.
func (r *Resetter) Reset(ctx context.Context) (int, error) {
	current := PeriodOf(r.now())
	n, err := r.store.Purge(ctx, current)
	if err != nil {
		return 0, err
	}
	r.logger.WithFields(map[string]interface{}{
		"period": current.String(),
		"purged": n,
	}).Info("Usage counters reset")
	if r.OnReset != nil {
		r.OnReset(n)
	}
	return n, nil
}

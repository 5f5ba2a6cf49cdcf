package tracker

import (
	"context"
	"time"

	"github.com/signalsfoundry/mount-tracker/internal/logging"
	"github.com/signalsfoundry/mount-tracker/tle"
)

// Refresher periodically re-fetches stale records off the control loop, so a
// slow catalog never delays a controller tick. Results land in the cache
// under its lock.
type Refresher struct {
	cache    *tle.Cache
	interval time.Duration
	log      logging.Logger
}

// NewRefresher builds a refresher checking every interval.
func NewRefresher(cache *tle.Cache, interval time.Duration, log logging.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultConfig().RefreshCheckInterval
	}
	return &Refresher{cache: cache, interval: interval, log: logging.OrNoop(log)}
}

// RunOnce refreshes every stale record once and logs failures as warnings.
func (r *Refresher) RunOnce(ctx context.Context) tle.RefreshReport {
	report := r.cache.RefreshAll(ctx)
	for id, err := range report.Failed {
		r.log.Warn(ctx, "TLE failed to refresh; keeping stale elements",
			logging.String("catalog_id", id),
			logging.Err(err),
		)
	}
	return report
}

// Run calls RunOnce immediately and then every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

package rates

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule refreshes the table once an hour.
const DefaultSchedule = "@every 1h"

// Refresher runs Cache.UpdateRates on a cron schedule for the lifetime of the
// process, independent of message traffic.
type Refresher struct {
	cache    *Cache
	schedule string
	logger   *slog.Logger
}

// NewRefresher creates a refresher. An empty schedule means DefaultSchedule.
func NewRefresher(cache *Cache, schedule string, logger *slog.Logger) *Refresher {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Refresher{cache: cache, schedule: schedule, logger: logger}
}

// Fill performs the boot-time refresh. Failure is logged and the process
// carries on with a USD-only table.
func (r *Refresher) Fill(ctx context.Context) bool {
	r.logger.Info("updating currency rates")
	if r.cache.UpdateRates(ctx) {
		r.logger.Info("currency rates updated", "entries", r.cache.Snapshot().Len())
		return true
	}
	r.logger.Warn("failed to update currency rates, continuing with cached rates")
	return false
}

// Start blocks until ctx is cancelled, refreshing on every tick.
func (r *Refresher) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.tick(ctx) }); err != nil {
		return fmt.Errorf("rate refresh schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.logger.Info("rate refresher started", "schedule", r.schedule)

	<-ctx.Done()
	r.logger.Info("rate refresher stopping")
	<-c.Stop().Done()
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if r.cache.UpdateRates(ctx) {
		r.logger.Info("currency rates refreshed")
	}
}

// ValidateSchedule reports whether spec is a schedule Start would accept.
func ValidateSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

package rates

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"calcbot/internal/domain"
	"calcbot/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Cache is the process-wide rate table. It satisfies calc.RateProvider.
type Cache struct {
	fiat     Source
	crypto   Source
	recorder domain.RefreshRecorder
	metrics  *metrics.RateMetrics
	logger   *slog.Logger
	clock    clockwork.Clock

	lazyInterval time.Duration

	table    atomic.Pointer[Table]
	updating atomic.Bool
	lastLazy atomic.Int64 // unix nanos of the last lazy refresh
}

// DefaultLazyRefreshInterval is the minimum gap between two refreshes
// triggered by unknown codes.
const DefaultLazyRefreshInterval = time.Minute

// CacheConfig configures a Cache. Recorder and Metrics are optional; Clock
// defaults to the real clock.
type CacheConfig struct {
	Fiat     Source
	Crypto   Source
	Recorder domain.RefreshRecorder
	Metrics  *metrics.RateMetrics
	Logger   *slog.Logger
	Clock    clockwork.Clock

	// LazyRefreshInterval limits FetchRateInBackground refreshes. Zero means
	// DefaultLazyRefreshInterval.
	LazyRefreshInterval time.Duration
}

// NewCache creates an empty cache. Until the first successful refresh only
// USD resolves.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.LazyRefreshInterval <= 0 {
		cfg.LazyRefreshInterval = DefaultLazyRefreshInterval
	}
	return &Cache{
		fiat:     cfg.Fiat,
		crypto:   cfg.Crypto,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		clock:    cfg.Clock,

		lazyInterval: cfg.LazyRefreshInterval,
	}
}

// UpdateRates fetches both sources concurrently and installs the merged table
// when it holds more than the USD baseline. It returns whether a new table was
// installed. A call made while another refresh is in flight returns false
// immediately: refreshes are dropped, never queued.
func (c *Cache) UpdateRates(ctx context.Context) bool {
	if !c.updating.CompareAndSwap(false, true) {
		c.logger.Debug("rate refresh already in flight, dropping request")
		c.countRefresh("dropped")
		return false
	}
	defer c.updating.Store(false)

	started := c.clock.Now()
	var fiat, crypto map[string]float64

	// Plain Group, not WithContext: one source failing must not cancel the other.
	var g errgroup.Group
	g.Go(func() (err error) {
		fiat, err = c.fetch(ctx, c.fiat)
		return err
	})
	g.Go(func() (err error) {
		crypto, err = c.fetch(ctx, c.crypto)
		return err
	})
	sourceErr := g.Wait()

	merged := merge(fiat, crypto)
	rec := domain.RefreshRecord{
		Entries:   len(merged),
		FiatOK:    fiat != nil,
		CryptoOK:  crypto != nil,
		StartedAt: started,
	}

	if len(merged) <= 1 {
		c.logger.Warn("rate refresh produced no rates, keeping previous table",
			"entries", c.Snapshot().Len(),
		)
		rec.Entries = 0
		rec.Duration = c.clock.Now().Sub(started)
		c.countRefresh("failed")
		c.record(ctx, rec)
		return false
	}

	fetchedAt := c.clock.Now()
	c.table.Store(&Table{rates: merged, FetchedAt: fetchedAt})

	rec.Installed = true
	rec.Duration = fetchedAt.Sub(started)
	c.logger.Info("rate table installed",
		"entries", len(merged),
		"fiat_ok", rec.FiatOK,
		"crypto_ok", rec.CryptoOK,
		"duration", rec.Duration,
	)
	if sourceErr != nil {
		c.countRefresh("partial")
	} else {
		c.countRefresh("installed")
	}
	if c.metrics != nil {
		c.metrics.TableSize.Set(float64(len(merged)))
		c.metrics.LastInstalled.Set(float64(fetchedAt.Unix()))
	}
	c.record(ctx, rec)
	return true
}

// RateFor returns the rate of code per 1 USD from the installed table. It
// never touches the network; a missing code is simply absent.
func (c *Cache) RateFor(code string) (decimal.Decimal, bool) {
	return c.table.Load().Rate(code)
}

// FetchRateInBackground is RateFor with one lazy refresh on a miss: it runs a
// single UpdateRates and checks the table once more. Lazy refreshes are at
// least LazyRefreshInterval apart, so unknown codes cannot drive the upstream
// feeds; a miss inside the interval is just a miss.
func (c *Cache) FetchRateInBackground(ctx context.Context, code string) (decimal.Decimal, bool) {
	if r, ok := c.RateFor(code); ok {
		return r, true
	}
	if !c.claimLazyRefresh() {
		c.logger.Debug("lazy rate refresh skipped", "code", code)
		c.countRefresh("skipped")
		return decimal.Decimal{}, false
	}
	c.UpdateRates(ctx)
	return c.RateFor(code)
}

func (c *Cache) claimLazyRefresh() bool {
	now := c.clock.Now().UnixNano()
	last := c.lastLazy.Load()
	if last != 0 && now-last < int64(c.lazyInterval) {
		return false
	}
	return c.lastLazy.CompareAndSwap(last, now)
}

// Snapshot returns the installed table, or nil before the first successful
// refresh.
func (c *Cache) Snapshot() *Table {
	return c.table.Load()
}

// fetch logs and counts its own failure; the returned error only tells
// UpdateRates that the refresh was partial.
func (c *Cache) fetch(ctx context.Context, src Source) (map[string]float64, error) {
	if src == nil {
		return nil, nil
	}
	quotes, err := src.Fetch(ctx)
	if err != nil {
		c.logger.Warn("rate source fetch failed", "source", src.Name(), "err", err)
		if c.metrics != nil {
			c.metrics.SourceFailures.WithLabelValues(src.Name()).Inc()
		}
		return nil, err
	}
	return quotes, nil
}

func (c *Cache) countRefresh(result string) {
	if c.metrics != nil {
		c.metrics.Refreshes.WithLabelValues(result).Inc()
	}
}

func (c *Cache) record(ctx context.Context, rec domain.RefreshRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordRefresh(ctx, rec); err != nil {
		c.logger.Warn("cannot record rate refresh", "err", err)
	}
}

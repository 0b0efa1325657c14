package main

import (
	"calcbot/internal/config"
	"calcbot/internal/domain"
	"calcbot/internal/metrics"
	"calcbot/internal/rates"
	"calcbot/internal/store"
)

// rateSources builds the fiat and crypto feeds from config.
func rateSources(cfg *config.Config) (fiat, crypto *rates.HTTPSource) {
	client := rates.NewHTTPClient(cfg.Rates.HTTPTimeout)
	breaker := rates.BreakerConfig{
		Failures: cfg.Rates.Breaker.Failures,
		OpenFor:  cfg.Rates.Breaker.OpenFor,
	}
	fiat = rates.NewFiatSource(rates.SourceConfig{URL: cfg.Rates.FiatURL, Client: client, Breaker: breaker})
	crypto = rates.NewCryptoSource(rates.SourceConfig{URL: cfg.Rates.CryptoURL, Client: client, Breaker: breaker}, cfg.Rates.CryptoSymbols)
	return fiat, crypto
}

// newRateCache wires a cache to its sources. rec and m may be nil.
func newRateCache(cfg *config.Config, rec domain.RefreshRecorder, m *metrics.RateMetrics) *rates.Cache {
	fiat, crypto := rateSources(cfg)
	return rates.NewCache(rates.CacheConfig{
		Fiat:     fiat,
		Crypto:   crypto,
		Recorder: rec,
		Metrics:  m,
		Logger:   logger,

		LazyRefreshInterval: cfg.Rates.LazyRefreshInterval,
	})
}

// recorders exposes the store through its interfaces, leaving them nil
// (not typed-nil) when the store is disabled.
func recorders(st *store.SQLiteStore) (domain.TriageRecorder, domain.RefreshRecorder) {
	if st == nil {
		return nil, nil
	}
	return st, st
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	return store.NewSQLiteStore(cfg.Store.DBPath, logger)
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// RateMetrics tracks the currency rate cache.
type RateMetrics struct {
	Refreshes      *prometheus.CounterVec
	SourceFailures *prometheus.CounterVec
	TableSize      prometheus.Gauge
	LastInstalled  prometheus.Gauge
}

// NewRateMetrics creates and registers rate cache metrics on the given registry.
func NewRateMetrics(reg prometheus.Registerer) *RateMetrics {
	m := &RateMetrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "refreshes_total",
			Help:      "Rate refresh attempts, by result (installed, partial, failed, dropped, skipped).",
		}, []string{"result"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "source_failures_total",
			Help:      "Upstream rate fetch failures, by source.",
		}, []string{"source"}),
		TableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "table_entries",
			Help:      "Number of currency codes in the installed rate table.",
		}),
		LastInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "last_installed_timestamp_seconds",
			Help:      "Unix time of the last successful table installation.",
		}),
	}

	reg.MustRegister(m.Refreshes, m.SourceFailures, m.TableSize, m.LastInstalled)
	return m
}

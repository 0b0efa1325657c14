package metrics

import "github.com/prometheus/client_golang/prometheus"

// TriageMetrics counts pipeline decisions and replies.
type TriageMetrics struct {
	Verdicts       *prometheus.CounterVec
	EngineFailures *prometheus.CounterVec
	Replies        *prometheus.CounterVec
}

// NewTriageMetrics creates and registers triage metrics on the given registry.
func NewTriageMetrics(reg prometheus.Registerer) *TriageMetrics {
	m := &TriageMetrics{
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "verdicts_total",
			Help:      "Messages classified, by verdict (respond or skip reason).",
		}, []string{"verdict"}),
		EngineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Calculations the engine could not evaluate, by mode (ambient or forced).",
		}, []string{"mode"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replies",
			Name:      "total",
			Help:      "Replies handed to a channel, by channel and outcome (sent or throttled).",
		}, []string{"channel", "outcome"}),
	}

	reg.MustRegister(m.Verdicts, m.EngineFailures, m.Replies)
	return m
}

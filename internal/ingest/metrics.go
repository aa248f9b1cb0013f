package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the ingest-path counters, labeled by source system and category
// where the split is useful.
type Metrics struct {
	accepted           *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	filtered           prometheus.Counter
	duplicates         prometheus.Counter
	appendRetries      prometheus.Counter
	appendFailures     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apitel_events_accepted_total",
			Help: "Canonical events written to the log store.",
		}, []string{"source_system", "category"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apitel_validation_failures_total",
			Help: "Payloads rejected by adapter validation, by offending field.",
		}, []string{"field"}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apitel_events_filtered_total",
			Help: "Events dropped by the ingest filter expression.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apitel_events_deduplicated_total",
			Help: "Events suppressed by the eventId dedup window.",
		}),
		appendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apitel_store_append_retries_total",
			Help: "Store append attempts that were retried.",
		}),
		appendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apitel_store_append_failures_total",
			Help: "Store appends that failed after exhausting retries.",
		}),
	}
	reg.MustRegister(
		m.accepted,
		m.validationFailures,
		m.filtered,
		m.duplicates,
		m.appendRetries,
		m.appendFailures,
	)
	return m
}

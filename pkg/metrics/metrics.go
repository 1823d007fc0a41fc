// Package metrics exposes the Prometheus collectors shared across the
// governance core. Cardinality is deliberately bounded: no collector is
// labeled per-agent or per-source, only by the small enumerated
// dimensions (event kind, risk grade, mode, tier) named in spec.md.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerAppends counts committed ledger entries by event kind.
	LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "governance",
		Subsystem: "ledger",
		Name:      "appends_total",
		Help:      "Total ledger entries appended, by event kind.",
	}, []string{"event_kind"})

	// ModeTransitions counts operational mode transitions.
	ModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "governance",
		Subsystem: "mode",
		Name:      "transitions_total",
		Help:      "Total operational mode transitions, by destination mode.",
	}, []string{"mode"})

	// QueueDepth reports the current admission queue depth.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "governance",
		Subsystem: "admission",
		Name:      "queue_depth",
		Help:      "Current depth of the bounded admission queue.",
	})

	// TierOutcomes counts Sentinel tier results by tier and status.
	TierOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "governance",
		Subsystem: "sentinel",
		Name:      "tier_outcomes_total",
		Help:      "Sentinel tier check outcomes, by tier and status.",
	}, []string{"tier", "status"})

	// TrustScoreUpdates histograms the resulting trust score after every
	// EWMA update, aggregated (not per-agent) to bound cardinality.
	TrustScoreUpdates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "governance",
		Subsystem: "trust",
		Name:      "score_after_update",
		Help:      "Distribution of agent trust scores immediately after an EWMA update.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	// SCIUpdates histograms source credibility index after updates.
	SCIUpdates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "governance",
		Subsystem: "trust",
		Name:      "sci_after_update",
		Help:      "Distribution of source credibility index values immediately after an update.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
)

// Handler returns the Prometheus scrape handler for the debug mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics holds the prometheus collectors of the booking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "equiprent"

// Result label values.
const (
	ResultOK           = "ok"
	ResultInsufficient = "insufficient"
	ResultAvailable    = "available"
	ResultUnavailable  = "unavailable"
	ResultError        = "error"
)

type Metrics struct {
	AvailabilityChecks *prometheus.CounterVec
	Commits            *prometheus.CounterVec
	Releases           prometheus.Counter
	Extends            *prometheus.CounterVec
	QuoteDuration      prometheus.Histogram
}

// New registers the collectors on reg. A nil reg gives unregistered
// collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AvailabilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Availability checks by outcome.",
		}, []string{"result"}),
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commit attempts by outcome.",
		}, []string{"result"}),
		Releases: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Commitment groups released.",
		}),
		Extends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extends_total",
			Help:      "Extend and reschedule attempts by outcome.",
		}, []string{"result"}),
		QuoteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_duration_seconds",
			Help:      "Time spent producing a price quote.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

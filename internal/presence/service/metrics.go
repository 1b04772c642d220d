package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts toggle decisions. A nil *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	errors    prometheus.Counter
	duration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Name:      "decisions_total",
			Help:      "Toggle decisions by reason and outcome.",
		}, []string{"reason", "outcome"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "presence",
			Name:      "toggle_errors_total",
			Help:      "Toggle requests that failed with an internal error.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "presence",
			Name:      "toggle_duration_seconds",
			Help:      "Time spent deciding a toggle request.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.decisions, m.errors, m.duration)
	return m
}

// Decisions exposes the counter for tests.
func (m *Metrics) Decisions() *prometheus.CounterVec { return m.decisions }

func (m *Metrics) observe(reason string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if ok {
		outcome = "accepted"
	}
	m.decisions.WithLabelValues(reason, outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) observeError(d time.Duration) {
	if m == nil {
		return
	}
	m.errors.Inc()
	m.duration.Observe(d.Seconds())
}

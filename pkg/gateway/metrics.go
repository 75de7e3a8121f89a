package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Authentication outcomes.
const (
	OutcomeOpen     = "open"
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
)

// Metrics records authentication decisions and upstream latency. A nil
// *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	upstream  *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_auth_decisions_total",
			Help: "Authentication decisions by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_duration_seconds",
			Help:    "Time spent proxying to an upstream, by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.decisions, m.upstream)
	return m
}

func (m *Metrics) decision(outcome, reason string) {
	if m != nil {
		m.decisions.WithLabelValues(outcome, reason).Inc()
	}
}

func (m *Metrics) observeUpstream(route string, status int, d time.Duration) {
	if m != nil {
		m.upstream.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

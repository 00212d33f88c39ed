// Package metrics holds the Prometheus collectors of a pathfinder session.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pathfinder"

// Metrics is one set of collectors. Build it with New and hand it to the
// gateway and the session that should report into it.
type Metrics struct {
	// Requests counts gateway requests issued, by operation.
	Requests *prometheus.CounterVec
	// Failures counts genuine request failures, by operation and class
	// (transport or backend).
	Failures *prometheus.CounterVec
	// Aborted counts requests canceled because a newer one superseded them.
	Aborted *prometheus.CounterVec
	// Latency observes request duration in seconds.
	Latency *prometheus.HistogramVec
	// StaleResponses counts responses dropped because a newer request
	// superseded them before they arrived.
	StaleResponses *prometheus.CounterVec
	// Notices counts user-facing notices by kind.
	Notices *prometheus.CounterVec
	// LiveRoutes is the size of the route collection.
	LiveRoutes prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Gateway requests issued.",
		}, []string{"op"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Gateway requests that failed.",
		}, []string{"op", "class"}),
		Aborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_aborted_total",
			Help:      "Gateway requests aborted by a newer request.",
		}, []string{"op"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Gateway request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Responses discarded as stale.",
		}, []string{"flow"}),
		Notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Notices shown to the user.",
		}, []string{"kind"}),
		LiveRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_routes",
			Help:      "Routes currently displayed.",
		}),
	}
}

// Register adds every collector to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Requests, m.Failures, m.Aborted, m.Latency, m.StaleResponses, m.Notices, m.LiveRoutes,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Request records one finished request. class is "", "aborted", "backend"
// or "transport".
func (m *Metrics) Request(op string, d time.Duration, class string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op).Inc()
	m.Latency.WithLabelValues(op).Observe(d.Seconds())
	switch class {
	case "":
	case "aborted":
		m.Aborted.WithLabelValues(op).Inc()
	default:
		m.Failures.WithLabelValues(op, class).Inc()
	}
}

func (m *Metrics) Stale(flow string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(flow).Inc()
}

func (m *Metrics) Notice(kind string) {
	if m == nil {
		return
	}
	m.Notices.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetLiveRoutes(n int) {
	if m == nil {
		return
	}
	m.LiveRoutes.Set(float64(n))
}

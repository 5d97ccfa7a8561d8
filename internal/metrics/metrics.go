// Package metrics exposes workflow counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the workflow collectors.
type Metrics struct {
	registry     *prometheus.Registry
	nodeVisits   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	storeWrites  *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energy_monitor_node_visits_total",
				Help: "Total number of workflow node visits",
			},
			[]string{"node"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "energy_monitor_step_duration_seconds",
				Help:    "Duration of workflow step executions",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"node"},
		),
		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energy_monitor_store_writes_total",
				Help: "Reading store writes by outcome",
			},
			[]string{"outcome"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energy_monitor_deliveries_total",
				Help: "Outbound message deliveries by outcome",
			},
			[]string{"outcome"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energy_monitor_requests_total",
				Help: "Inbound webhook requests by result",
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(
		m.nodeVisits, m.stepDuration, m.storeWrites, m.deliveries, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NodeVisited records one execution of node.
func (m *Metrics) NodeVisited(node string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeVisits.WithLabelValues(node).Inc()
	m.stepDuration.WithLabelValues(node).Observe(d.Seconds())
}

// StoreWrite records a store write outcome.
func (m *Metrics) StoreWrite(ok bool) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(outcome(ok)).Inc()
}

// Delivery records an outbound delivery outcome.
func (m *Metrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome(ok)).Inc()
}

// Request records an inbound request result such as "ok" or "forbidden".
func (m *Metrics) Request(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Package metrics holds the prometheus collectors of the signaling server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. Each server builds its own registry so
// tests can run several servers in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Messages  *prometheus.CounterVec
	Errors    *prometheus.CounterVec
	Dropped   prometheus.Counter
	Sessions  prometheus.Gauge
	Producers prometheus.Counter
	Duration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cast",
			Subsystem: "signal",
			Name:      "messages_total",
			Help:      "Inbound signaling messages by type.",
		}, []string{"type"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cast",
			Subsystem: "signal",
			Name:      "errors_total",
			Help:      "Error replies by request type.",
		}, []string{"type"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cast",
			Subsystem: "signal",
			Name:      "malformed_total",
			Help:      "Inbound frames dropped because they were not valid JSON.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cast",
			Name:      "sessions",
			Help:      "Open signaling sessions.",
		}),
		Producers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cast",
			Name:      "producers_total",
			Help:      "Producers created.",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cast",
			Subsystem: "signal",
			Name:      "handle_seconds",
			Help:      "Time spent handling one inbound message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
	m.Registry.MustRegister(m.Messages, m.Errors, m.Dropped, m.Sessions, m.Producers, m.Duration)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

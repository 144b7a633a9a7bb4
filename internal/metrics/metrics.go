// Package metrics exposes queue and hook counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spool"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	enqueued     *prometheus.CounterVec
	polls        *prometheus.CounterVec
	handleTime   *prometheus.HistogramVec
	deadLettered *prometheus.CounterVec
	schedPasses  *prometheus.CounterVec
	triggers     *prometheus.CounterVec
	depth        prometheus.Gauge
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry:     prometheus.NewRegistry(),
		enqueued:     newCounterVec("queue", "enqueued_total", "Work items enqueued.", "transport"),
		polls:        newCounterVec("queue", "polls_total", "Poll results by status.", "status"),
		deadLettered: newCounterVec("queue", "dead_lettered_total", "Work items moved to the dead letter table.", "transport"),
		schedPasses:  newCounterVec("scheduler", "passes_total", "Scheduler passes by strategy and result.", "strategy", "result"),
		triggers:     newCounterVec("trigger", "fired_total", "Timed triggers fired.", "name"),
		handleTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "handle_seconds",
			Help:      "Handler latency per transport.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 30, 120},
		}, []string{"transport"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Work items currently stored, as of the last stats read.",
		}),
	}
	m.registry.MustRegister(
		m.enqueued, m.polls, m.handleTime, m.deadLettered, m.schedPasses, m.triggers, m.depth,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Enqueued(transport string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(transport).Inc()
}

func (m *Metrics) Polled(status string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(status).Inc()
}

func (m *Metrics) Handled(transport string, d time.Duration) {
	if m == nil {
		return
	}
	m.handleTime.WithLabelValues(transport).Observe(d.Seconds())
}

func (m *Metrics) DeadLettered(transport string) {
	if m == nil {
		return
	}
	m.deadLettered.WithLabelValues(transport).Inc()
}

func (m *Metrics) SchedulerPass(strategy, result string) {
	if m == nil {
		return
	}
	m.schedPasses.WithLabelValues(strategy, result).Inc()
}

func (m *Metrics) TriggerFired(name string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(name).Inc()
}

func (m *Metrics) SetDepth(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}

package instrument

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "survey"

// Metrics owns the collectors behind PromInstrumenter.
type Metrics struct {
	registry       *prometheus.Registry
	spanDuration   *prometheus.HistogramVec
	verdicts       *prometheus.CounterVec
	saves          *prometheus.CounterVec
	businessEvents *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry, plus the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		spanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "span_duration_seconds",
			Help:      "Duration of instrumented operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "component", "action", "status"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_verdicts_total",
			Help:      "Editing rule verdicts by severity and outcome.",
		}, []string{"severity", "outcome"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Collection record saves by final state.",
		}, []string{"state"}),
		businessEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "business_events_total",
			Help:      "Business events by action and entity.",
		}, []string{"action", "entity"}),
	}
	m.registry.MustRegister(
		m.spanDuration,
		m.verdicts,
		m.saves,
		m.businessEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

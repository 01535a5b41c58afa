// Package observability holds the Prometheus metrics of the explorer.
package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"data-explorer-be/pkg/ai/agent"
)

const namespace = "data_explorer"

type Metrics struct {
	registry *prometheus.Registry

	turns             *prometheus.CounterVec
	attempts          *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	modelDuration     *prometheus.HistogramVec
	modelErrors       *prometheus.CounterVec
	sessions          *prometheus.CounterVec
	commitConflicts   prometheus.Counter
}

var _ agent.Metrics = &Metrics{}

// NewMetrics registers every collector on a private registry, plus the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Finished turns by classification and outcome",
		}, []string{"classification", "outcome"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "attempts_total",
			Help:      "Generate/execute attempts by outcome",
		}, []string{"outcome"}),
		executionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		modelDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Language model call latency by step",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"step"}),
		modelErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Failed language model calls by step",
		}, []string{"step"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events",
		}, []string{"event"}),
		commitConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "commit_conflicts_total",
			Help:      "Turn results rejected because the session changed meanwhile",
		}),
	}
}

func (m *Metrics) ObserveTurn(classification, outcome string) {
	m.turns.WithLabelValues(classification, outcome).Inc()
}

func (m *Metrics) ObserveAttempt(outcome string) {
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveExecution(d time.Duration, outcome string) {
	m.executionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveModelCall(step string, d time.Duration, err error) {
	m.modelDuration.WithLabelValues(step).Observe(d.Seconds())
	if err != nil {
		m.modelErrors.WithLabelValues(step).Inc()
	}
}

// ObserveSession counts "created", "deleted" and "expired" sessions.
func (m *Metrics) ObserveSession(event string) {
	m.sessions.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveCommitConflict() {
	m.commitConflicts.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

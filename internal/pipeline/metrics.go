package pipeline

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a single run. Each run owns its
// registry so concurrent runs and tests never share counters.
type Metrics struct {
	registry *prometheus.Registry

	Attempts        *prometheus.CounterVec
	Chunks          *prometheus.CounterVec
	Cooldowns       prometheus.Counter
	PrimaryBackoffs prometheus.Counter
	RequestDuration *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge
	ActiveWorkers   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digestran_translation_attempts_total",
				Help: "Translation attempts, labeled by model and outcome.",
			},
			[]string{"model", "outcome"},
		),
		Chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digestran_chunks_total",
				Help: "Chunks that reached a terminal state, labeled by status.",
			},
			[]string{"status"},
		),
		Cooldowns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "digestran_cooldowns_total",
				Help: "Global cooldowns initiated after fallback rate limits.",
			},
		),
		PrimaryBackoffs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "digestran_primary_backoffs_total",
				Help: "Worker-local pauses after a primary model rate limit.",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digestran_request_duration_seconds",
				Help:    "Duration of translation calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "digestran_queue_depth",
				Help: "Chunks waiting for a worker.",
			},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "digestran_active_workers",
				Help: "Workers currently processing a chunk.",
			},
		),
	}

	m.registry.MustRegister(
		m.Attempts,
		m.Chunks,
		m.Cooldowns,
		m.PrimaryBackoffs,
		m.RequestDuration,
		m.QueueDepth,
		m.ActiveWorkers,
	)
	return m
}

// Registry exposes the run's registry, e.g. for a push gateway or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the run's metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeAttempt(model string, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(model, outcome).Inc()
	m.RequestDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) chunkDone(s Status) {
	if m == nil {
		return
	}
	m.Chunks.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) cooldown() {
	if m == nil {
		return
	}
	m.Cooldowns.Inc()
}

func (m *Metrics) primaryBackoff() {
	if m == nil {
		return
	}
	m.PrimaryBackoffs.Inc()
}

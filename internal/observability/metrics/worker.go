package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	reindexTotal     *prometheus.CounterVec
	reindexDuration  *prometheus.HistogramVec
	reindexInFlight  prometheus.Gauge
	missingEmbedding *prometheus.GaugeVec

	Embedding *EmbeddingMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	reindexTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "worker",
			Name:      "reindex_total",
			Help:      "Total reindex runs by status and force flag.",
		},
		[]string{"service", "status", "force"},
	)
	reindexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "worker",
			Name:      "reindex_duration_seconds",
			Help:      "Reindex duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	reindexInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "worker",
			Name:      "reindex_in_flight",
			Help:      "Number of in-flight reindex runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	missingEmbedding := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "worker",
			Name:      "documents",
			Help:      "Indexed documents after the last reindex by embedding state.",
		},
		[]string{"service", "state"},
	)

	registry.MustRegister(reindexTotal, reindexDuration, reindexInFlight, missingEmbedding)

	return &WorkerMetrics{
		registry:         registry,
		reindexTotal:     reindexTotal,
		reindexDuration:  reindexDuration,
		reindexInFlight:  reindexInFlight,
		missingEmbedding: missingEmbedding,
		Embedding:        newEmbeddingMetrics(registry, service),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartReindex() {
	m.reindexInFlight.Inc()
}

func (m *WorkerMetrics) FinishReindex(service string, force bool, duration time.Duration, err error) {
	m.reindexInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.reindexTotal.WithLabelValues(service, status, strconv.FormatBool(force)).Inc()
	m.reindexDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEmbeddingStatus(service string, cached, fallbacks, missing int) {
	m.missingEmbedding.WithLabelValues(service, "cached").Set(float64(cached))
	m.missingEmbedding.WithLabelValues(service, "fallback").Set(float64(fallbacks))
	m.missingEmbedding.WithLabelValues(service, "missing").Set(float64(missing))
}

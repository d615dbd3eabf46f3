package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EmbeddingMetrics implements ports.EmbeddingObserver.
type EmbeddingMetrics struct {
	service string

	providerCallsTotal  *prometheus.CounterVec
	providerTextsTotal  *prometheus.CounterVec
	fallbackVectorTotal *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
}

func newEmbeddingMetrics(registry prometheus.Registerer, service string) *EmbeddingMetrics {
	providerCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "embedding",
			Name:      "provider_calls_total",
			Help:      "Embedding provider calls by mode and outcome.",
		},
		[]string{"service", "mode", "outcome"},
	)
	providerTextsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "embedding",
			Name:      "provider_texts_total",
			Help:      "Texts sent to the embedding provider.",
		},
		[]string{"service", "mode"},
	)
	fallbackVectorTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "embedding",
			Name:      "fallback_vectors_total",
			Help:      "Locally generated fallback vectors.",
		},
		[]string{"service"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "embedding",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by operation and target state.",
		},
		[]string{"service", "operation", "to"},
	)

	registry.MustRegister(providerCallsTotal, providerTextsTotal, fallbackVectorTotal, cacheLookupsTotal, breakerTransitions)

	return &EmbeddingMetrics{
		service:             service,
		providerCallsTotal:  providerCallsTotal,
		providerTextsTotal:  providerTextsTotal,
		fallbackVectorTotal: fallbackVectorTotal,
		cacheLookupsTotal:   cacheLookupsTotal,
		breakerTransitions:  breakerTransitions,
	}
}

func (m *EmbeddingMetrics) ObserveProviderCall(mode, outcome string, texts int) {
	m.providerCallsTotal.WithLabelValues(m.service, mode, outcome).Inc()
	if texts > 0 {
		m.providerTextsTotal.WithLabelValues(m.service, mode).Add(float64(texts))
	}
}

func (m *EmbeddingMetrics) ObserveFallbackVectors(count int) {
	if count <= 0 {
		return
	}
	m.fallbackVectorTotal.WithLabelValues(m.service).Add(float64(count))
}

func (m *EmbeddingMetrics) ObserveCacheLookup(outcome string) {
	m.cacheLookupsTotal.WithLabelValues(m.service, outcome).Inc()
}

// ObserveBreakerTransition matches resilience.StateObserver.
func (m *EmbeddingMetrics) ObserveBreakerTransition(operation, _ string, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, to).Inc()
}

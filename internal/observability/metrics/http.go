package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	contextRequestsTotal *prometheus.CounterVec
	contextResults       *prometheus.HistogramVec
	contextDuration      *prometheus.HistogramVec
	expansionTotal       *prometheus.CounterVec
	reindexRequestsTotal *prometheus.CounterVec

	Embedding *EmbeddingMetrics
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	contextRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "context",
			Name:      "requests_total",
			Help:      "Resolved context requests by source (exact-match or retrieval).",
		},
		[]string{"service", "source", "verbatim"},
	)
	contextResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "context",
			Name:      "retrieval_results",
			Help:      "Distribution of retrieval results per request.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	contextDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "context",
			Name:      "duration_seconds",
			Help:      "Context resolution duration in seconds by source.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "source"},
	)
	expansionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "context",
			Name:      "expansion_total",
			Help:      "Query expansions by trigger reason and pass used.",
		},
		[]string{"service", "reason", "pass"},
	)
	reindexRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "admin",
			Name:      "reindex_requests_total",
			Help:      "Reindex requests by mode and status.",
		},
		[]string{"service", "mode", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		contextRequestsTotal,
		contextResults,
		contextDuration,
		expansionTotal,
		reindexRequestsTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		contextRequestsTotal: contextRequestsTotal,
		contextResults:       contextResults,
		contextDuration:      contextDuration,
		expansionTotal:       expansionTotal,
		reindexRequestsTotal: reindexRequestsTotal,
		Embedding:            newEmbeddingMetrics(registry, service),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps label cardinality bounded for unknown paths.
func normalizePath(path string) string {
	switch {
	case path == "/healthz", path == "/metrics", strings.HasPrefix(path, "/v1/"):
		return path
	default:
		return "other"
	}
}

func (m *HTTPServerMetrics) RecordContext(service, source string, verbatim bool, resultCount int, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	m.contextRequestsTotal.WithLabelValues(service, source, strconv.FormatBool(verbatim)).Inc()
	m.contextDuration.WithLabelValues(service, source).Observe(duration.Seconds())
	if source == "retrieval" {
		m.contextResults.WithLabelValues(service).Observe(float64(resultCount))
	}
}

func (m *HTTPServerMetrics) RecordExpansion(service, reason string, usedPass2, failed bool) {
	if reason == "" {
		reason = "unknown"
	}
	pass := "pass1"
	switch {
	case failed:
		pass = "pass2_failed"
	case usedPass2:
		pass = "pass2"
	}
	m.expansionTotal.WithLabelValues(service, reason, pass).Inc()
}

func (m *HTTPServerMetrics) RecordReindexRequest(service string, async bool, err error) {
	mode := "sync"
	if async {
		mode = "async"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.reindexRequestsTotal.WithLabelValues(service, mode, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

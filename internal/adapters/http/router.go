package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/resume-context-engine/internal/config"
	"github.com/kirillkom/resume-context-engine/internal/core/ports"
	"github.com/kirillkom/resume-context-engine/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	resolver       ports.ContextResolver
	admin          ports.EmbeddingAdministrator
	queue          ports.ReindexQueue
	metrics        *metrics.HTTPServerMetrics
	adminAPIKey    string
	requestTimeout time.Duration
}

// NewRouter builds the API router. queue and httpMetrics may be nil; async
// reindex is then rejected and /metrics is not served.
func NewRouter(
	cfg config.Config,
	resolver ports.ContextResolver,
	admin ports.EmbeddingAdministrator,
	queue ports.ReindexQueue,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Router{
		resolver:       resolver,
		admin:          admin,
		queue:          queue,
		metrics:        httpMetrics,
		adminAPIKey:    cfg.AdminAPIKey,
		requestTimeout: timeout,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/context", rt.resolveContext)
	mux.Handle("/v1/admin/embeddings", rt.adminAuthMiddleware(http.HandlerFunc(rt.embeddingStatus)))
	mux.Handle("/v1/admin/reindex", rt.adminAuthMiddleware(http.HandlerFunc(rt.reindex)))

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, rt.requestTimeout)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

type reindexRequest struct {
	Force bool `json:"force"`
	Async bool `json:"async"`
}

func (rt *Router) embeddingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, rt.admin.EmbeddingStatus())
}

func (rt *Router) reindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode reindex request", errors.New("invalid json")))
		return
	}

	if req.Async {
		err := rt.enqueueReindex(r, req.Force)
		rt.recordReindex(true, err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "force": req.Force})
		return
	}

	// Synchronous reindex may take longer than a regular request and is not
	// bounded by the request timeout.
	status, err := rt.admin.PrepareEmbeddings(r.Context(), req.Force)
	rt.recordReindex(false, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) enqueueReindex(r *http.Request, force bool) error {
	if rt.queue == nil {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue reindex", errors.New("async reindex requires NATS_ENABLED=true"))
	}
	ctx, cancel := rt.withTimeout(r.Context())
	defer cancel()
	return rt.queue.PublishReindex(ctx, domain.ReindexRequest{
		Force:       force,
		RequestedBy: requestIDFromContext(r.Context()),
	})
}

func (rt *Router) recordReindex(async bool, err error) {
	if rt.metrics != nil {
		rt.metrics.RecordReindexRequest(serviceName, async, err)
	}
}

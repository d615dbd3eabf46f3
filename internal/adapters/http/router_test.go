package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/resume-context-engine/internal/config"
	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/core/ports"
	"github.com/kirillkom/resume-context-engine/internal/observability/metrics"
)

type resolverFake struct {
	out *domain.ChatContext
	err error
	got domain.ContextRequest
}

func (f *resolverFake) Resolve(_ context.Context, req domain.ContextRequest) (*domain.ChatContext, error) {
	f.got = req
	return f.out, f.err
}

type adminFake struct {
	status domain.EmbeddingStatus
	err    error
	forced []bool
}

func (f *adminFake) PrepareEmbeddings(_ context.Context, force bool) (domain.EmbeddingStatus, error) {
	f.forced = append(f.forced, force)
	return f.status, f.err
}

func (f *adminFake) EmbeddingStatus() domain.EmbeddingStatus {
	return f.status
}

type queueFake struct {
	published []domain.ReindexRequest
	err       error
}

func (f *queueFake) PublishReindex(_ context.Context, req domain.ReindexRequest) error {
	f.published = append(f.published, req)
	return f.err
}

func (f *queueFake) SubscribeReindex(context.Context, func(context.Context, domain.ReindexRequest) error) error {
	return nil
}

func newTestHandler(cfg config.Config, resolver *resolverFake, admin *adminFake, queue *queueFake) http.Handler {
	var q ports.ReindexQueue
	if queue != nil {
		q = queue
	}
	return NewRouter(cfg, resolver, admin, q, metrics.NewHTTPServerMetrics(serviceName)).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestResolveContextSetsObservabilityHeaders(t *testing.T) {
	resolver := &resolverFake{out: &domain.ChatContext{
		Source:             domain.ContextSourceRetrieval,
		RequiresGeneration: true,
		Results: []domain.RetrievalResult{
			{QuestionID: "languages", QuestionName: "What languages do you know?", Context: "Go", Score: 0.8, MatchedOn: domain.DocumentTypeContext},
		},
		Expansion: &domain.ExpansionMetadata{Triggered: true, Reason: domain.ExpansionReasonLowSignalToken, UsedPass2: true},
	}}
	handler := newTestHandler(config.Config{}, resolver, &adminFake{}, nil)

	res := postJSON(t, handler, "/v1/context", map[string]string{
		"question":              "tell me more",
		"previous_user_message": "What languages do you know?",
	}, nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if resolver.got.Question != "tell me more" || resolver.got.Prior.PreviousUserMessage != "What languages do you know?" {
		t.Fatalf("unexpected resolver request: %+v", resolver.got)
	}
	checks := map[string]string{
		headerContextSource:      "retrieval",
		headerRetrievalCount:     "1",
		headerExpansionTriggered: "true",
		headerExpansionPass:      "2",
	}
	for header, want := range checks {
		if got := res.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if res.Header().Get(headerRetrievalLatency) == "" {
		t.Fatalf("expected latency header")
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	var body domain.ChatContext
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Results) != 1 || body.Expansion == nil || !body.Expansion.UsedPass2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestResolveContextVerbatimAnswer(t *testing.T) {
	resolver := &resolverFake{out: &domain.ChatContext{
		Source:     domain.ContextSourceExactMatch,
		ExactMatch: &domain.ExactMatch{Question: "Can I see your CV?", Context: "/cv.pdf", Verbatim: true},
		Answer:     "/cv.pdf",
		Results:    []domain.RetrievalResult{},
	}}
	handler := newTestHandler(config.Config{}, resolver, &adminFake{}, nil)

	res := postJSON(t, handler, "/v1/context", map[string]string{"question": "Can I see your CV?"}, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(headerContextSource) != "exact-match" || res.Header().Get(headerExpansionTriggered) != "false" {
		t.Fatalf("unexpected headers: %v", res.Header())
	}
	if !strings.Contains(res.Body.String(), `"requires_generation":false`) {
		t.Fatalf("expected requires_generation=false in body: %s", res.Body.String())
	}
}

func TestResolveContextMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid input", err: domain.WrapError(domain.ErrInvalidInput, "resolve", errors.New("question is required")), want: http.StatusBadRequest},
		{name: "not configured", err: domain.WrapError(domain.ErrEmbeddingNotConfigured, "embed", errors.New("no provider")), want: http.StatusServiceUnavailable},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "embed", errors.New("502")), want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, &resolverFake{err: tc.err}, &adminFake{}, nil)
			res := postJSON(t, handler, "/v1/context", map[string]string{"question": "q"}, nil)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestResolveContextRejectsInvalidJSONAndMethod(t *testing.T) {
	handler := newTestHandler(config.Config{}, &resolverFake{}, &adminFake{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/context", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/context", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	admin := &adminFake{status: domain.EmbeddingStatus{Total: 4, Cached: 4}}
	handler := newTestHandler(config.Config{AdminAPIKey: "s3cret"}, &resolverFake{}, admin, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/embeddings", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/embeddings", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var status domain.EmbeddingStatus
	if err := json.Unmarshal(res.Body.Bytes(), &status); err != nil || status.Total != 4 {
		t.Fatalf("unexpected status %+v err=%v", status, err)
	}
}

func TestReindexSyncAndAsync(t *testing.T) {
	admin := &adminFake{status: domain.EmbeddingStatus{Total: 2, Cached: 2}}
	queue := &queueFake{}
	handler := newTestHandler(config.Config{}, &resolverFake{}, admin, queue)

	res := postJSON(t, handler, "/v1/admin/reindex", map[string]bool{"force": true}, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("sync reindex expected 200, got %d", res.Code)
	}
	if len(admin.forced) != 1 || !admin.forced[0] {
		t.Fatalf("expected forced prepare, got %v", admin.forced)
	}

	res = postJSON(t, handler, "/v1/admin/reindex", map[string]bool{"async": true}, map[string]string{requestIDHeader: "req-42"})
	if res.Code != http.StatusAccepted {
		t.Fatalf("async reindex expected 202, got %d", res.Code)
	}
	if len(queue.published) != 1 || queue.published[0].Force || queue.published[0].RequestedBy != "req-42" {
		t.Fatalf("unexpected published requests: %+v", queue.published)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/reindex", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || len(admin.forced) != 2 || admin.forced[1] {
		t.Fatalf("expected empty body to run a plain reindex, got %d %v", rec.Code, admin.forced)
	}
}

func TestAsyncReindexWithoutQueueIsRejected(t *testing.T) {
	handler := newTestHandler(config.Config{}, &resolverFake{}, &adminFake{}, nil)
	res := postJSON(t, handler, "/v1/admin/reindex", map[string]bool{"async": true}, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestMetricsEndpointExposesContextCounters(t *testing.T) {
	resolver := &resolverFake{out: &domain.ChatContext{Source: domain.ContextSourceRetrieval, Results: []domain.RetrievalResult{}}}
	handler := newTestHandler(config.Config{}, resolver, &adminFake{}, nil)
	postJSON(t, handler, "/v1/context", map[string]string{"question": "anything"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), `rce_context_requests_total{service="api",source="retrieval",verbatim="false"} 1`) {
		t.Fatalf("expected context counter in metrics output:\n%s", body)
	}
}

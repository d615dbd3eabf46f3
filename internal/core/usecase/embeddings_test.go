package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

func TestEnsureEmbeddingsFillsInBatchesAndPersists(t *testing.T) {
	engine := newTestEngine(sampleEntries(), &keywordProvider{}, newMemoryKV())

	if err := engine.service.EnsureEmbeddings(context.Background()); err != nil {
		t.Fatalf("EnsureEmbeddings() error = %v", err)
	}

	total := engine.service.Len()
	if total != 6 {
		t.Fatalf("expected 6 documents, got %d", total)
	}
	// batch size 2 over 6 documents
	if engine.provider.callCount() != 3 {
		t.Fatalf("expected 3 batch calls, got %d", engine.provider.callCount())
	}
	if engine.store.puts != total {
		t.Fatalf("expected %d cache writes, got %d", total, engine.store.puts)
	}

	status := engine.service.EmbeddingStatus()
	if status.Missing != 0 || status.Cached != total {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPrepareEmbeddingsIsIdempotentAcrossRestarts(t *testing.T) {
	store := newMemoryKV()
	first := newTestEngine(sampleEntries(), &keywordProvider{}, store)
	if _, err := first.service.PrepareEmbeddings(context.Background(), false); err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}
	snapshot := make(map[string]string, len(store.data))
	for k, v := range store.data {
		snapshot[k] = v
	}
	putsBefore := store.puts

	second := newTestEngine(sampleEntries(), &keywordProvider{}, store)
	status, err := second.service.PrepareEmbeddings(context.Background(), false)
	if err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}
	if second.provider.callCount() != 0 {
		t.Fatalf("expected no provider calls on warm cache, got %d", second.provider.callCount())
	}
	if store.puts != putsBefore {
		t.Fatalf("expected no cache writes on warm cache")
	}
	for k, v := range snapshot {
		if store.data[k] != v {
			t.Fatalf("cached embedding %s changed", k)
		}
	}
	if status.Missing != 0 {
		t.Fatalf("expected nothing missing, got %+v", status)
	}
}

func TestPrepareEmbeddingsRecomputesChangedText(t *testing.T) {
	store := newMemoryKV()
	first := newTestEngine(sampleEntries(), &keywordProvider{}, store)
	if _, err := first.service.PrepareEmbeddings(context.Background(), false); err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}

	edited := sampleEntries()
	edited[1].Context = "Music, climbing and Kubernetes clusters."
	second := newTestEngine(edited, &keywordProvider{}, store)
	if _, err := second.service.PrepareEmbeddings(context.Background(), false); err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}
	if second.provider.embeddedTexts() != 1 {
		t.Fatalf("expected only the edited chunk to be embedded, got %d texts", second.provider.embeddedTexts())
	}
}

func TestPrepareEmbeddingsForceRegenerates(t *testing.T) {
	engine := newTestEngine(sampleEntries(), &keywordProvider{}, newMemoryKV())
	if _, err := engine.service.PrepareEmbeddings(context.Background(), false); err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}
	before := engine.provider.embeddedTexts()

	status, err := engine.service.PrepareEmbeddings(context.Background(), true)
	if err != nil {
		t.Fatalf("PrepareEmbeddings(force) error = %v", err)
	}
	if engine.provider.embeddedTexts() != before*2 {
		t.Fatalf("expected all documents re-embedded, got %d texts total", engine.provider.embeddedTexts())
	}
	if engine.store.deletes != status.Total {
		t.Fatalf("expected %d cache deletes, got %d", status.Total, engine.store.deletes)
	}
	if status.Missing != 0 || status.Cached != status.Total {
		t.Fatalf("unexpected status after force: %+v", status)
	}
	for _, doc := range status.Documents {
		if !doc.HasEmbedding || doc.EmbeddingLength != len(keywordVocabulary) {
			t.Fatalf("unexpected document status: %+v", doc)
		}
	}
}

func TestFallbackVectorsAreNotPersisted(t *testing.T) {
	engine := newTestEngine(sampleEntries(), &keywordProvider{err: errors.New("down")}, newMemoryKV())
	status, err := engine.service.PrepareEmbeddings(context.Background(), false)
	if err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}
	if status.Missing != 0 || status.Cached != 0 || status.Fallbacks != status.Total {
		t.Fatalf("expected every document on a fallback vector, got %+v", status)
	}
	if engine.store.puts != 0 {
		t.Fatalf("expected no cache writes for fallback vectors, got %d", engine.store.puts)
	}
	for _, doc := range status.Documents {
		if !doc.Fallback || !doc.HasEmbedding {
			t.Fatalf("unexpected document status: %+v", doc)
		}
	}
}

func TestEnsureEmbeddingsUnconfiguredProvider(t *testing.T) {
	docs := BuildDocuments(sampleEntries(), wholeChunker{})
	service := NewEmbeddingService(docs, NewEmbeddingAdapter(nil, 0, nil), NewEmbeddingCache(nil, "", nil), 0)
	err := service.EnsureEmbeddings(context.Background())
	if !domain.IsKind(err, domain.ErrEmbeddingNotConfigured) {
		t.Fatalf("expected ErrEmbeddingNotConfigured, got %v", err)
	}
}

func TestEnsureEmbeddingsConcurrentColdStartSharesFill(t *testing.T) {
	engine := newTestEngine(sampleEntries(), &keywordProvider{}, newMemoryKV())

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.service.EnsureEmbeddings(context.Background()); err != nil {
				t.Errorf("EnsureEmbeddings() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := engine.provider.embeddedTexts(); got != engine.service.Len() {
		t.Fatalf("expected each document embedded once, got %d texts", got)
	}
	if status := engine.service.EmbeddingStatus(); status.Missing != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRetrieveRecoversAfterProviderOutage(t *testing.T) {
	provider := &keywordProvider{err: errors.New("down")}
	engine := newTestEngine(sampleEntries(), provider, newMemoryKV())
	clock := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	engine.service.now = func() time.Time { return clock }
	ctx := context.Background()

	if _, err := engine.retriever.Retrieve(ctx, "What languages do you know?"); err != nil {
		t.Fatalf("Retrieve() during outage error = %v", err)
	}
	if status := engine.service.EmbeddingStatus(); status.Fallbacks != status.Total || status.Cached != 0 {
		t.Fatalf("expected outage to leave fallback vectors, got %+v", status)
	}

	provider.setErr(nil)
	before := provider.embeddedTexts()
	if _, err := engine.retriever.Retrieve(ctx, "What languages do you know?"); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	// inside the retry interval only the query is embedded
	if got := provider.embeddedTexts() - before; got != 1 {
		t.Fatalf("expected documents to wait for the retry interval, got %d texts embedded", got)
	}

	clock = clock.Add(DefaultFallbackRetryInterval)
	results, err := engine.retriever.Retrieve(ctx, "What languages do you know?")
	if err != nil {
		t.Fatalf("Retrieve() after recovery error = %v", err)
	}
	if len(results) == 0 || results[0].QuestionID != "what-languages-do-you-know" {
		t.Fatalf("expected recovered index to answer, got %+v", results)
	}
	status := engine.service.EmbeddingStatus()
	if status.Cached != status.Total || status.Fallbacks != 0 {
		t.Fatalf("expected provider vectors after recovery, got %+v", status)
	}
	if engine.store.puts != status.Total {
		t.Fatalf("expected recovered vectors to be cached, got %d writes", engine.store.puts)
	}
}

func TestPrepareEmbeddingsRetriesFallbacksImmediately(t *testing.T) {
	provider := &keywordProvider{err: errors.New("down")}
	engine := newTestEngine(sampleEntries(), provider, newMemoryKV())
	if _, err := engine.service.PrepareEmbeddings(context.Background(), false); err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}

	provider.setErr(nil)
	status, err := engine.service.PrepareEmbeddings(context.Background(), false)
	if err != nil {
		t.Fatalf("PrepareEmbeddings() error = %v", err)
	}
	if status.Cached != status.Total || status.Fallbacks != 0 || status.Missing != 0 {
		t.Fatalf("expected fallbacks replaced, got %+v", status)
	}
}

func TestReloadPicksUpVectorsFromSharedCache(t *testing.T) {
	store := newMemoryKV()
	api := newTestEngine(sampleEntries(), &keywordProvider{err: errors.New("down")}, store)
	if err := api.service.EnsureEmbeddings(context.Background()); err != nil {
		t.Fatalf("EnsureEmbeddings() error = %v", err)
	}

	worker := newTestEngine(sampleEntries(), &keywordProvider{}, store)
	if _, err := worker.service.PrepareEmbeddings(context.Background(), true); err != nil {
		t.Fatalf("worker PrepareEmbeddings() error = %v", err)
	}

	callsBefore := api.provider.callCount()
	status, err := api.service.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if status.Cached != status.Total || status.Fallbacks != 0 {
		t.Fatalf("expected vectors from the shared cache, got %+v", status)
	}
	if api.provider.callCount() != callsBefore {
		t.Fatalf("expected reload to be served by the cache")
	}
}

func TestEnsureEmbeddingsFillOutlivesCancelledCaller(t *testing.T) {
	provider := &keywordProvider{gate: make(chan struct{})}
	engine := newTestEngine(sampleEntries(), provider, newMemoryKV())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() { firstDone <- engine.service.EnsureEmbeddings(firstCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	for provider.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("fill never reached the provider")
		}
		time.Sleep(time.Millisecond)
	}

	secondDone := make(chan error, 1)
	go func() { secondDone <- engine.service.EnsureEmbeddings(context.Background()) }()

	cancelFirst()
	if err := <-firstDone; err != nil {
		t.Fatalf("cancelled caller error = %v", err)
	}
	close(provider.gate)
	if err := <-secondDone; err != nil {
		t.Fatalf("EnsureEmbeddings() error = %v", err)
	}

	status := engine.service.EmbeddingStatus()
	if status.Cached != status.Total || status.Fallbacks != 0 {
		t.Fatalf("expected a complete index, got %+v", status)
	}
}

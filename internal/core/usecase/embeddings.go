package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

const (
	DefaultEmbeddingBatchSize = 20
	// DefaultFillTimeout bounds a fill shared by request callers.
	DefaultFillTimeout = 2 * time.Minute
	// DefaultFallbackRetryInterval spaces provider retries for documents
	// that were given fallback vectors.
	DefaultFallbackRetryInterval = 30 * time.Second
)

const fillKey = "fill"

// EmbeddingService owns the document index and its in-memory vectors.
// Documents are immutable after construction; vectors are replaced whole and
// never mutated, so readers may share them without copying.
type EmbeddingService struct {
	docs      []domain.Document
	embedder  *EmbeddingAdapter
	cache     *EmbeddingCache
	batchSize int

	fillTimeout   time.Duration
	retryInterval time.Duration
	now           func() time.Time

	mu        sync.RWMutex
	vectors   map[string][]float32
	fallbacks map[string]bool
	retryAt   time.Time

	fills singleflight.Group
}

func NewEmbeddingService(docs []domain.Document, embedder *EmbeddingAdapter, cache *EmbeddingCache, batchSize int) *EmbeddingService {
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}
	return &EmbeddingService{
		docs:          append([]domain.Document(nil), docs...),
		embedder:      embedder,
		cache:         cache,
		batchSize:     batchSize,
		fillTimeout:   DefaultFillTimeout,
		retryInterval: DefaultFallbackRetryInterval,
		now:           time.Now,
		vectors:       make(map[string][]float32, len(docs)),
		fallbacks:     make(map[string]bool),
	}
}

func (s *EmbeddingService) Len() int {
	return len(s.docs)
}

// Snapshot returns copies of all documents with whatever embeddings currently exist.
func (s *EmbeddingService) Snapshot() []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Document, len(s.docs))
	for i, doc := range s.docs {
		doc.Embedding = s.vectors[doc.ID]
		out[i] = doc
	}
	return out
}

// EnsureEmbeddings fills missing vectors from the cache, then from the
// provider. Documents holding fallback vectors are retried once the retry
// interval has passed. Concurrent callers share one in-flight fill, which runs
// detached from any single caller. Only configuration errors are returned; a
// caller whose ctx ends while waiting proceeds with the vectors that exist.
func (s *EmbeddingService) EnsureEmbeddings(ctx context.Context) error {
	retryFallbacks := s.fallbackRetryDue()
	if len(s.pendingDocuments(retryFallbacks)) == 0 {
		return nil
	}
	if err := s.embedder.requireConfigured(); err != nil {
		return err
	}

	ch := s.fills.DoChan(fillKey, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fillTimeout)
		defer cancel()
		return nil, s.fill(fillCtx, retryFallbacks)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return nil
	}
}

// PrepareEmbeddings fills every missing vector and retries fallback vectors.
// With force, all cached and in-memory vectors are dropped first and
// regenerated.
func (s *EmbeddingService) PrepareEmbeddings(ctx context.Context, force bool) (domain.EmbeddingStatus, error) {
	if err := s.embedder.requireConfigured(); err != nil {
		return s.EmbeddingStatus(), err
	}

	if force {
		s.resetVectors()
		for _, doc := range s.docs {
			s.cache.Delete(ctx, doc.ID)
		}
		slog.Info("embeddings_reset", "documents", len(s.docs))
	}

	_, err, _ := s.fills.Do(fillKey, func() (any, error) {
		return nil, s.fill(ctx, true)
	})
	return s.EmbeddingStatus(), err
}

// Reload drops in-memory vectors and rehydrates them from the cache, computing
// only what the cache cannot supply. It picks up a reindex run by another
// process sharing the same cache.
func (s *EmbeddingService) Reload(ctx context.Context) (domain.EmbeddingStatus, error) {
	if err := s.embedder.requireConfigured(); err != nil {
		return s.EmbeddingStatus(), err
	}

	s.resetVectors()
	_, err, _ := s.fills.Do(fillKey, func() (any, error) {
		return nil, s.fill(ctx, true)
	})
	return s.EmbeddingStatus(), err
}

func (s *EmbeddingService) EmbeddingStatus() domain.EmbeddingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := domain.EmbeddingStatus{
		Total:     len(s.docs),
		Documents: make([]domain.DocumentEmbeddingStatus, 0, len(s.docs)),
	}
	for _, doc := range s.docs {
		vector := s.vectors[doc.ID]
		fallback := s.fallbacks[doc.ID]
		switch {
		case len(vector) == 0:
			status.Missing++
		case fallback:
			status.Fallbacks++
		default:
			status.Cached++
		}
		status.Documents = append(status.Documents, domain.DocumentEmbeddingStatus{
			ID:              doc.ID,
			QuestionID:      doc.QuestionID,
			Type:            doc.Type,
			HasEmbedding:    len(vector) > 0,
			Fallback:        fallback,
			EmbeddingLength: len(vector),
		})
	}
	return status
}

func (s *EmbeddingService) fill(ctx context.Context, retryFallbacks bool) error {
	pending := s.pendingDocuments(retryFallbacks)
	if len(pending) == 0 {
		return nil
	}

	uncached := make([]domain.Document, 0, len(pending))
	hydrated := 0
	for _, doc := range pending {
		if vector, ok := s.cache.Lookup(ctx, doc); ok {
			s.setVector(doc.ID, vector, false)
			hydrated++
			continue
		}
		uncached = append(uncached, doc)
	}

	computed, fellBack := 0, 0
	for start := 0; start < len(uncached); start += s.batchSize {
		end := start + s.batchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		batch := uncached[start:end]

		texts := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = doc.Text
		}
		results, err := s.embedder.embed(ctx, texts)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			// fallbacks produced by a cancelled fill are not worth keeping
			slog.Warn("embedding_fill_interrupted", "remaining", len(uncached)-start, "error", ctx.Err())
			return nil
		}

		for i, doc := range batch {
			s.setVector(doc.ID, results[i].vector, results[i].fallback)
			// fallback vectors stay in memory so an outage cannot poison the cache
			if results[i].fallback {
				fellBack++
				continue
			}
			s.cache.Put(ctx, doc.ID, domain.CachedEmbedding{
				ContentHash: doc.ContentHash,
				Embedding:   results[i].vector,
			})
		}
		computed += len(batch)
	}

	s.mu.Lock()
	if fellBack > 0 {
		s.retryAt = s.now().Add(s.retryInterval)
	} else {
		s.retryAt = time.Time{}
	}
	s.mu.Unlock()

	slog.Info("embeddings_filled",
		"pending", len(pending),
		"from_cache", hydrated,
		"computed", computed,
		"fallbacks", fellBack,
	)
	return nil
}

func (s *EmbeddingService) fallbackRetryDue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fallbacks) > 0 && !s.now().Before(s.retryAt)
}

func (s *EmbeddingService) pendingDocuments(retryFallbacks bool) []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if len(s.vectors[doc.ID]) == 0 || (retryFallbacks && s.fallbacks[doc.ID]) {
			out = append(out, doc)
		}
	}
	return out
}

func (s *EmbeddingService) resetVectors() {
	s.fills.Forget(fillKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = make(map[string][]float32, len(s.docs))
	s.fallbacks = make(map[string]bool)
	s.retryAt = time.Time{}
}

func (s *EmbeddingService) setVector(id string, vector []float32, fallback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[id] = vector
	if fallback {
		s.fallbacks[id] = true
	} else {
		delete(s.fallbacks, id)
	}
}

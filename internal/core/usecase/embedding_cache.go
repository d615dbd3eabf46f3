package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/core/ports"
)

const DefaultCacheKeyPrefix = "embedding:"

// EmbeddingCache stores document vectors in a key/value store. Every failure
// degrades to a miss or a no-op; a nil store disables caching entirely.
type EmbeddingCache struct {
	store    ports.KeyValueStore
	prefix   string
	observer ports.EmbeddingObserver
}

func NewEmbeddingCache(store ports.KeyValueStore, prefix string, observer ports.EmbeddingObserver) *EmbeddingCache {
	if prefix == "" {
		prefix = DefaultCacheKeyPrefix
	}
	if observer == nil {
		observer = ports.NopEmbeddingObserver{}
	}
	return &EmbeddingCache{store: store, prefix: prefix, observer: observer}
}

// Lookup returns the cached vector for doc only when its content hash still matches.
func (c *EmbeddingCache) Lookup(ctx context.Context, doc domain.Document) ([]float32, bool) {
	entry, ok := c.Get(ctx, doc.ID)
	if !ok {
		return nil, false
	}
	if entry.ContentHash != doc.ContentHash {
		c.observer.ObserveCacheLookup("stale")
		return nil, false
	}
	c.observer.ObserveCacheLookup("hit")
	return entry.Embedding, true
}

func (c *EmbeddingCache) Get(ctx context.Context, documentID string) (domain.CachedEmbedding, bool) {
	if c == nil || c.store == nil {
		return domain.CachedEmbedding{}, false
	}

	raw, found, err := c.store.Get(ctx, c.key(documentID))
	if err != nil {
		slog.Warn("cache_read_failed", "document_id", documentID, "error", err)
		c.observer.ObserveCacheLookup("error")
		return domain.CachedEmbedding{}, false
	}
	if !found || strings.TrimSpace(raw) == "" {
		c.observer.ObserveCacheLookup("miss")
		return domain.CachedEmbedding{}, false
	}

	entry, ok := decodeCachedEmbedding(raw)
	if !ok {
		slog.Warn("cache_entry_malformed", "document_id", documentID)
		c.observer.ObserveCacheLookup("malformed")
		return domain.CachedEmbedding{}, false
	}
	return entry, true
}

func (c *EmbeddingCache) Put(ctx context.Context, documentID string, entry domain.CachedEmbedding) {
	if c == nil || c.store == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("cache_encode_failed", "document_id", documentID, "error", err)
		return
	}
	if err := c.store.Put(ctx, c.key(documentID), string(payload)); err != nil {
		slog.Warn("cache_write_failed", "document_id", documentID, "error", err)
	}
}

func (c *EmbeddingCache) Delete(ctx context.Context, documentID string) {
	if c == nil || c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.key(documentID)); err != nil {
		slog.Warn("cache_delete_failed", "document_id", documentID, "error", err)
	}
}

func (c *EmbeddingCache) key(documentID string) string {
	return c.prefix + documentID
}

func decodeCachedEmbedding(raw string) (domain.CachedEmbedding, bool) {
	var stored struct {
		ContentHash string          `json:"contentHash"`
		Embedding   json.RawMessage `json:"embedding"`
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.CachedEmbedding{}, false
	}
	if stored.ContentHash == "" || len(stored.Embedding) == 0 {
		return domain.CachedEmbedding{}, false
	}

	var vector []float32
	if err := json.Unmarshal(stored.Embedding, &vector); err != nil || len(vector) == 0 {
		return domain.CachedEmbedding{}, false
	}
	return domain.CachedEmbedding{ContentHash: stored.ContentHash, Embedding: vector}, true
}

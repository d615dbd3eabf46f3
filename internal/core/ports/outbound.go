package ports

import (
	"context"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

// KnowledgeLoader supplies the static knowledge base at startup.
type KnowledgeLoader interface {
	Load(ctx context.Context) ([]domain.KnowledgeEntry, error)
}

// Chunker splits context bodies into embedding-sized windows.
type Chunker interface {
	Split(text string) []string
}

// EmbeddingProvider calls the external embedding model. Implementations
// return one vector per text when they succeed; callers must not assume it.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// KeyValueStore is the persistent cache backend. A missing key is reported
// with found=false and a nil error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ReindexQueue publishes/consumes re-indexing requests.
type ReindexQueue interface {
	PublishReindex(ctx context.Context, req domain.ReindexRequest) error
	SubscribeReindex(ctx context.Context, handler func(context.Context, domain.ReindexRequest) error) error
}

// EmbeddingObserver receives embedding pipeline events for metrics.
type EmbeddingObserver interface {
	ObserveProviderCall(mode, outcome string, texts int)
	ObserveFallbackVectors(count int)
	ObserveCacheLookup(outcome string)
}

type NopEmbeddingObserver struct{}

func (NopEmbeddingObserver) ObserveProviderCall(string, string, int) {}
func (NopEmbeddingObserver) ObserveFallbackVectors(int)              {}
func (NopEmbeddingObserver) ObserveCacheLookup(string)               {}

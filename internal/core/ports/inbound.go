package ports

import (
	"context"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

// ContextResolver is the inbound contract used by the chat handler: exact
// match first, then (expanded) retrieval.
type ContextResolver interface {
	Resolve(ctx context.Context, req domain.ContextRequest) (*domain.ChatContext, error)
}

// EmbeddingAdministrator is the inbound contract for re-indexing and index health.
type EmbeddingAdministrator interface {
	PrepareEmbeddings(ctx context.Context, force bool) (domain.EmbeddingStatus, error)
	EmbeddingStatus() domain.EmbeddingStatus
}

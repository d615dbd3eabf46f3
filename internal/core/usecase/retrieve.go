package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

const (
	DefaultMinScore   = 0.6
	DefaultMaxResults = 5
)

type RetrievalOptions struct {
	MinScore   float64
	MaxResults int
}

func (o RetrievalOptions) normalize() RetrievalOptions {
	out := o
	if out.MinScore <= 0 || out.MinScore > 1 {
		out.MinScore = DefaultMinScore
	}
	if out.MaxResults <= 0 {
		out.MaxResults = DefaultMaxResults
	}
	return out
}

// Retriever ranks documents against a query by cosine similarity. Scoring
// only reads the shared index, so concurrent queries are safe.
type Retriever struct {
	index    *EmbeddingService
	embedder *EmbeddingAdapter
	opts     RetrievalOptions
}

func NewRetriever(index *EmbeddingService, embedder *EmbeddingAdapter, opts RetrievalOptions) *Retriever {
	return &Retriever{
		index:    index,
		embedder: embedder,
		opts:     opts.normalize(),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.RetrievalResult, error) {
	if r.index.Len() == 0 {
		return nil, nil
	}

	if err := r.index.EnsureEmbeddings(ctx); err != nil {
		return nil, fmt.Errorf("ensure embeddings: %w", err)
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return RankDocuments(queryVector, r.index.Snapshot(), r.opts), nil
}

// RankDocuments keeps, per question, the best document scoring at or above
// MinScore, then returns them by descending score.
func RankDocuments(queryVector []float32, docs []domain.Document, opts RetrievalOptions) []domain.RetrievalResult {
	opts = opts.normalize()

	best := make(map[string]domain.RetrievalResult)
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		score := CosineSimilarity(queryVector, doc.Embedding)
		if score < opts.MinScore {
			continue
		}
		if current, ok := best[doc.QuestionID]; ok && current.Score >= score {
			continue
		}
		best[doc.QuestionID] = domain.RetrievalResult{
			QuestionID:   doc.QuestionID,
			QuestionName: doc.QuestionName,
			Context:      doc.Context,
			Score:        score,
			MatchedOn:    doc.Type,
		}
	}

	out := make([]domain.RetrievalResult, 0, len(best))
	for _, result := range best {
		out = append(out, result)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].QuestionID < out[j].QuestionID
	})

	if len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out
}

// CosineSimilarity is 0 when either vector has zero norm or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

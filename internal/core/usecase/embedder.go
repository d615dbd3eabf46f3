package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/core/ports"
)

const DefaultFallbackDimensions = 128

var errNoProvider = errors.New("no embedding provider binding")

type embeddingResult struct {
	vector   []float32
	fallback bool
}

// EmbeddingAdapter turns an unreliable provider into one that always yields a
// vector per text: batch call, then per-item calls, then a local fallback.
// The only error it returns is ErrEmbeddingNotConfigured.
type EmbeddingAdapter struct {
	provider     ports.EmbeddingProvider
	fallbackDims int
	observer     ports.EmbeddingObserver
}

func NewEmbeddingAdapter(provider ports.EmbeddingProvider, fallbackDims int, observer ports.EmbeddingObserver) *EmbeddingAdapter {
	if fallbackDims <= 0 {
		fallbackDims = DefaultFallbackDimensions
	}
	if observer == nil {
		observer = ports.NopEmbeddingObserver{}
	}
	return &EmbeddingAdapter{
		provider:     provider,
		fallbackDims: fallbackDims,
		observer:     observer,
	}
}

func (a *EmbeddingAdapter) Configured() bool {
	return a != nil && a.provider != nil
}

func (a *EmbeddingAdapter) requireConfigured() error {
	if !a.Configured() {
		return domain.WrapError(domain.ErrEmbeddingNotConfigured, "embed", errNoProvider)
	}
	return nil
}

func (a *EmbeddingAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results, err := a.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(results))
	for i, r := range results {
		out[i] = r.vector
	}
	return out, nil
}

func (a *EmbeddingAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	results, err := a.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0].vector, nil
}

func (a *EmbeddingAdapter) embed(ctx context.Context, texts []string) ([]embeddingResult, error) {
	if err := a.requireConfigured(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := a.provider.Embed(ctx, texts)
	out := make([]embeddingResult, len(texts))
	pending := make([]int, 0, len(texts))

	switch {
	case err != nil:
		a.observer.ObserveProviderCall("batch", "error", len(texts))
		slog.Warn("embedding_batch_failed", "texts", len(texts), "error", err)
		pending = allIndexes(len(texts))
	case len(vectors) != len(texts):
		a.observer.ObserveProviderCall("batch", "malformed", len(texts))
		slog.Warn("embedding_batch_count_mismatch", "texts", len(texts), "vectors", len(vectors))
		pending = allIndexes(len(texts))
	default:
		for i, v := range vectors {
			if len(v) == 0 {
				pending = append(pending, i)
				continue
			}
			out[i] = embeddingResult{vector: v}
		}
		outcome := "success"
		if len(pending) > 0 {
			outcome = "partial"
		}
		a.observer.ObserveProviderCall("batch", outcome, len(texts))
	}

	fallbacks := 0
	for _, i := range pending {
		// a failed single-text batch already was the individual call
		if len(texts) > 1 {
			single, singleErr := a.provider.Embed(ctx, []string{texts[i]})
			if singleErr == nil && len(single) == 1 && len(single[0]) > 0 {
				a.observer.ObserveProviderCall("single", "success", 1)
				out[i] = embeddingResult{vector: single[0]}
				continue
			}
			a.observer.ObserveProviderCall("single", "error", 1)
		}
		out[i] = embeddingResult{vector: FallbackEmbedding(texts[i], a.fallbackDims), fallback: true}
		fallbacks++
	}

	if fallbacks > 0 {
		a.observer.ObserveFallbackVectors(fallbacks)
		slog.Warn("embedding_fallback_vectors", "count", fallbacks, "texts", len(texts))
	}
	return out, nil
}

// FallbackEmbedding derives a deterministic, L2-normalized vector from the
// character codes of text. It only keeps retrieval alive during provider outages.
func FallbackEmbedding(text string, dims int) []float32 {
	if dims <= 0 {
		dims = DefaultFallbackDimensions
	}
	acc := make([]float64, dims)
	i := 0
	for _, r := range text {
		code := float64(r)
		acc[i%dims] += code
		acc[(i*7+int(r))%dims] += code / 2
		i++
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for j, v := range acc {
		out[j] = float32(v / norm)
	}
	return out
}

func allIndexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

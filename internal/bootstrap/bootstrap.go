package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/resume-context-engine/internal/config"
	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/core/ports"
	"github.com/kirillkom/resume-context-engine/internal/core/usecase"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/chunking"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/knowledge/yamlfile"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/resilience"
)

type Options struct {
	// Observer receives embedding pipeline events; nil disables them.
	Observer ports.EmbeddingObserver
	// BreakerObserver is notified of provider circuit breaker transitions.
	BreakerObserver resilience.StateObserver
	// Loader overrides the YAML knowledge loader.
	Loader ports.KnowledgeLoader
	// Store overrides the configured cache backend.
	Store ports.KeyValueStore
	// Provider overrides the HTTP embedding client.
	Provider ports.EmbeddingProvider
}

type App struct {
	Config config.Config

	Context    *usecase.ContextUseCase
	Embeddings *usecase.EmbeddingService
	Queue      *nats.Queue

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}

	loader := opts.Loader
	if loader == nil {
		loader = yamlfile.NewLoader(cfg.KnowledgePath)
	}
	entries, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}

	splitter := chunking.NewSplitter(cfg.ChunkTokens, cfg.ChunkOverlapTokens)
	docs := usecase.BuildDocuments(entries, splitter)

	store := opts.Store
	if store == nil {
		opened, closeStore, err := openCacheStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = opened
		app.closeFns = append(app.closeFns, closeStore)
	}

	provider := opts.Provider
	if provider == nil && cfg.EmbeddingConfigured() {
		provider = newEmbeddingProvider(cfg, opts.BreakerObserver)
	}
	if provider == nil {
		slog.Warn("embedding_provider_unconfigured", "embed_url", cfg.EmbedURL, "embed_model", cfg.EmbedModel)
	}

	adapter := usecase.NewEmbeddingAdapter(provider, cfg.EmbedFallbackDimensions, opts.Observer)
	cache := usecase.NewEmbeddingCache(store, cfg.CacheKeyPrefix, opts.Observer)
	app.Embeddings = usecase.NewEmbeddingService(docs, adapter, cache, cfg.EmbedBatchSize)

	retriever := usecase.NewRetriever(app.Embeddings, adapter, usecase.RetrievalOptions{
		MinScore:   cfg.RAGMinScore,
		MaxResults: cfg.RAGMaxResults,
	})
	expanding := usecase.NewExpandingRetriever(retriever, usecase.ExpansionOptions{
		Enabled:           cfg.ExpansionEnabled,
		MinScore:          cfg.RAGMinScore,
		WeakScoreFactor:   cfg.ExpansionWeakScoreFactor,
		ShortMessageChars: cfg.ExpansionShortMessageChars,
		SummaryChars:      cfg.ExpansionSummaryChars,
	})
	app.Context = usecase.NewContextUseCase(usecase.NewExactMatcher(entries), expanding)

	if cfg.NATSEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init reindex queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)

		switch cfg.CacheBackend {
		case config.CacheBackendMemory, config.CacheBackendNone:
			slog.Warn("reindex_cache_not_shared",
				"cache_backend", cfg.CacheBackend,
				"hint", "async reindex needs CACHE_BACKEND=postgres or a shared sqlite file",
			)
		}
	}

	slog.Info("context_engine_ready",
		"entries", len(entries),
		"documents", len(docs),
		"cache_backend", cfg.CacheBackend,
		"provider_configured", provider != nil,
		"expansion_enabled", cfg.ExpansionEnabled,
		"nats_enabled", cfg.NATSEnabled,
	)
	return app, nil
}

// ReindexQueue returns the queue as a port, or nil when NATS is disabled.
func (a *App) ReindexQueue() ports.ReindexQueue {
	if a.Queue == nil {
		return nil
	}
	return a.Queue
}

// ReloadAfterReindex reloads vectors once a worker reports a finished
// reindex. Vectors come from the shared cache; anything missing there is
// recomputed locally.
func (a *App) ReloadAfterReindex(ctx context.Context, done domain.ReindexCompleted) error {
	status, err := a.Embeddings.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload embeddings: %w", err)
	}
	slog.Info("embeddings_reloaded",
		"requested_by", done.RequestedBy,
		"force", done.Force,
		"cached", status.Cached,
		"fallbacks", status.Fallbacks,
		"missing", status.Missing,
	)
	return nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func newEmbeddingProvider(cfg config.Config, breakerObserver resilience.StateObserver) ports.EmbeddingProvider {
	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = cfg.EmbedRetryMaxAttempts
	policy.BreakerEnabled = cfg.EmbedBreakerEnabled
	policy.OnStateChange = breakerObserver

	client := ollama.New(ollama.Config{
		BaseURL:        cfg.EmbedURL,
		Model:          cfg.EmbedModel,
		Path:           cfg.EmbedPath,
		APIKey:         cfg.EmbedAPIKey,
		Timeout:        time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
		RateLimitRPS:   cfg.EmbedRateLimitRPS,
		RateLimitBurst: cfg.EmbedRateLimitBurst,
		Resilience:     policy,
	})
	return ollama.NewEmbedder(client)
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/resume-context-engine/internal/adapters/http"
	"github.com/kirillkom/resume-context-engine/internal/bootstrap"
	"github.com/kirillkom/resume-context-engine/internal/config"
	"github.com/kirillkom/resume-context-engine/internal/observability/logging"
	"github.com/kirillkom/resume-context-engine/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer:        httpMetrics.Embedding,
		BreakerObserver: httpMetrics.Embedding.ObserveBreakerTransition,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Warm the index in the background; requests arriving first share the fill.
	go func() {
		if err := app.Embeddings.EnsureEmbeddings(ctx); err != nil {
			slog.Warn("embedding_warmup_skipped", "error", err)
		}
	}()

	// Workers broadcast finished reindex runs; reload so /v1/context serves them.
	if app.Queue != nil {
		go func() {
			if err := app.Queue.SubscribeReindexed(ctx, app.ReloadAfterReindex); err != nil {
				slog.Error("reindexed_subscribe_failed", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, app.Context, app.Embeddings, app.ReindexQueue(), httpMetrics).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}

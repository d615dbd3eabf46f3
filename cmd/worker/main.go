package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/resume-context-engine/internal/bootstrap"
	"github.com/kirillkom/resume-context-engine/internal/config"
	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/observability/logging"
	"github.com/kirillkom/resume-context-engine/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	if !cfg.NATSEnabled {
		slog.Error("worker_requires_nats", "hint", "set NATS_ENABLED=true")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer:        workerMetrics.Embedding,
		BreakerObserver: workerMetrics.Embedding.ObserveBreakerTransition,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeReindex(ctx, func(handlerCtx context.Context, req domain.ReindexRequest) error {
		reindexCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		workerMetrics.StartReindex()
		start := time.Now()
		status, err := app.Embeddings.PrepareEmbeddings(reindexCtx, req.Force)
		workerMetrics.FinishReindex(serviceName, req.Force, time.Since(start), err)
		workerMetrics.ObserveEmbeddingStatus(serviceName, status.Cached, status.Fallbacks, status.Missing)
		if err != nil {
			return err
		}

		slog.Info("reindex_completed",
			"force", req.Force,
			"requested_by", req.RequestedBy,
			"total", status.Total,
			"cached", status.Cached,
			"missing", status.Missing,
			"fallbacks", status.Fallbacks,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
		return app.Queue.PublishReindexed(handlerCtx, domain.ReindexCompleted{
			Force:       req.Force,
			RequestedBy: req.RequestedBy,
			Cached:      status.Cached,
			Fallbacks:   status.Fallbacks,
			Missing:     status.Missing,
		})
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

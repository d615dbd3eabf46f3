package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/resume-context-engine/internal/bootstrap"
	"github.com/kirillkom/resume-context-engine/internal/config"
	"github.com/kirillkom/resume-context-engine/internal/observability/logging"
)

func main() {
	force := flag.Bool("force", false, "drop cached embeddings and regenerate all of them")
	verbose := flag.Bool("documents", false, "print per-document embedding status")
	flag.Parse()

	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stderr, "reindex", cfg.LogLevel, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	status, err := app.Embeddings.PrepareEmbeddings(ctx, *force)
	if err != nil {
		slog.Error("reindex_failed", "force", *force, "error", err)
		app.Close()
		os.Exit(1)
	}
	if !*verbose {
		status.Documents = nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)

	if status.Missing > 0 || status.Fallbacks > 0 {
		slog.Warn("reindex_incomplete", "missing", status.Missing, "fallbacks", status.Fallbacks)
	}
}

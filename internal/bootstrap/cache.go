package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/resume-context-engine/internal/config"
	"github.com/kirillkom/resume-context-engine/internal/core/ports"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/cache/memory"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/cache/sqlite"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/repository/postgres"
)

// openCacheStore returns a nil store for the "none" backend.
func openCacheStore(ctx context.Context, cfg config.Config) (ports.KeyValueStore, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheBackendNone:
		return nil, func() {}, nil
	case config.CacheBackendMemory:
		return memory.NewStore(), func() {}, nil
	case config.CacheBackendSQLite, "":
		store, err := sqlite.Open(cfg.CacheSQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case config.CacheBackendPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		store := postgres.NewKeyValueStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

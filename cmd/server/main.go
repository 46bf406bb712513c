package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/gradebook/internal/cache"
	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
	"github.com/JonMunkholm/gradebook/internal/memstore"
	"github.com/JonMunkholm/gradebook/internal/metrics"
	"github.com/JonMunkholm/gradebook/internal/pgstore"
	"github.com/JonMunkholm/gradebook/internal/remote"
	"github.com/JonMunkholm/gradebook/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	m := metrics.New()

	store, closeStore, err := openStore(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to open student store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var snapshots core.SnapshotCache
	if cfg.Cache.RedisURL != "" {
		c, err := cache.New(ctx, cache.Config{URL: cfg.Cache.RedisURL, Key: cfg.Cache.Key, TTL: cfg.Cache.TTL})
		if err != nil {
			// The cache only speeds up warm starts; run without it.
			slog.Warn("snapshot cache unavailable", "error", err)
		} else {
			defer c.Close()
			snapshots = c
			slog.Info("snapshot cache enabled", "ttl", cfg.Cache.TTL)
		}
	}

	service := core.NewService(store, core.ServiceConfig{
		Cache:       snapshots,
		Recorder:    m,
		Limiter:     core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		HistorySize: cfg.Import.HistorySize,
		ImportDefaults: core.ImportOptions{
			UpdateExisting: cfg.Import.UpdateExisting,
			SkipInvalid:    cfg.Import.SkipInvalid,
			YieldEvery:     cfg.Import.YieldEvery,
			YieldPause:     cfg.Import.YieldPause,
		},
	})

	n, err := service.Warm(ctx)
	if err != nil {
		// Keep serving; reads return an empty table until a reload succeeds.
		slog.Error("initial load failed", "error", err)
	} else {
		slog.Info("working set ready", "records", n)
	}

	server := web.NewServer(cfg, service, store, m)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running imports finish their writes
		limiter := service.Limiter()
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(jobCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openStore builds the configured persistence backend. The returned func
// releases its resources.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (core.Persistence, func(), error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case config.BackendPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		}

		store := pgstore.New(pool, cfg.Store.PageSize)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case config.BackendHTTP:
		client, err := remote.New(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Timeout: cfg.Remote.Timeout,
			Retry: remote.RetryConfig{
				MaxRetries:     cfg.Remote.MaxRetries,
				InitialBackoff: cfg.Remote.InitialBackoff,
				MaxBackoff:     cfg.Remote.MaxBackoff,
				Multiplier:     2,
			},
			Observer: m,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using remote student store", "base_url", cfg.Remote.BaseURL)
		return client, func() {}, nil

	default:
		slog.Warn("using in-memory student store; data is lost on restart")
		return memstore.New(cfg.Store.PageSize), func() {}, nil
	}
}

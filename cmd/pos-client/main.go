package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/fjod/posify/internal/cart"
	"github.com/fjod/posify/internal/checkout"
	apphttp "github.com/fjod/posify/internal/http"
	"github.com/fjod/posify/internal/orderclient"
	"github.com/fjod/posify/internal/queue"
	"github.com/fjod/posify/internal/reconciler"
	"github.com/fjod/posify/internal/settings"
	"github.com/fjod/posify/internal/storage"
	"github.com/fjod/posify/pkg/config"
	"github.com/fjod/posify/pkg/logger"
	"github.com/fjod/posify/pkg/shutdown"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadClient()
	log := logger.New(logger.Options{
		Service: "pos-client",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	if err := run(cfg, log); err != nil {
		log.Error("pos client stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("pos client stopped")
}

func run(cfg config.Client, log *slog.Logger) error {
	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	persister, closePersister, err := openPersister(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePersister()

	store, err := queue.NewStore(ctx, persister, queue.WithLogger(log))
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}
	stats := store.Stats()
	log.Info("queue restored", "queued", stats.Queued, "failed", stats.Failed, "processed", stats.Processed)

	client := orderclient.New(orderclient.Config{
		BaseURL:            cfg.OrderAPIURL,
		Timeout:            cfg.OrderAPITimeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}, log)

	c := cart.New()
	orchestrator := checkout.New(c, client, store, log)
	if s, err := settings.LoadFile(cfg.SettingsPath); err != nil {
		log.Warn("settings not loaded, orders are rejected until settings are pushed",
			"path", cfg.SettingsPath, "error", err)
	} else if err := orchestrator.UpdateSettings(s); err != nil {
		log.Warn("settings file rejected", "path", cfg.SettingsPath, "error", err)
	}

	syncer := reconciler.New(store, client, reconciler.Config{
		Interval:      cfg.SyncInterval,
		RatePerSecond: cfg.SyncRate,
	}, log)

	router := apphttp.NewRouter(apphttp.Handlers{
		Cart:   apphttp.NewCartHandler(c, orchestrator),
		Orders: apphttp.NewOrdersHandler(orchestrator, cfg.RequestTimeout),
		Queue:  apphttp.NewQueueHandler(store, syncer, cfg.RequestTimeout),
	}, log, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: otelhttp.NewHandler(router, "pos-client"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("pos client listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		syncer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openPersister(ctx context.Context, cfg config.Client, log *slog.Logger) (queue.Persister, func(), error) {
	switch cfg.QueueBackend {
	case "sqlite":
		p, err := storage.NewSQLitePersister(cfg.SQLitePath, cfg.QueueNamespace)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := p.RunMigrations(cfg.MigrationsPath); err != nil {
			p.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("queue persisted to sqlite", "path", cfg.SQLitePath)
		return p, func() { _ = p.Close() }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("queue persisted to redis", "addr", cfg.RedisAddr)
		return storage.NewRedisPersister(rdb, cfg.QueueNamespace), func() { _ = rdb.Close() }, nil
	case "memory":
		log.Warn("queue is not durable, pending orders are lost on restart")
		return queue.NewMemoryPersister(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}

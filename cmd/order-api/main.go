package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/fjod/posify/internal/orderapi/cache"
	orderhttp "github.com/fjod/posify/internal/orderapi/http"
	"github.com/fjod/posify/internal/orderapi/publisher"
	"github.com/fjod/posify/internal/orderapi/repository"
	"github.com/fjod/posify/internal/orderapi/service"
	"github.com/fjod/posify/pkg/config"
	"github.com/fjod/posify/pkg/logger"
	"github.com/fjod/posify/pkg/shutdown"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadOrderAPI()
	log := logger.New(logger.Options{
		Service: "order-api",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	if err := run(cfg, log); err != nil {
		log.Error("order api stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("order api stopped")
}

func run(cfg config.OrderAPI, log *slog.Logger) error {
	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	creds := &repository.Credentials{
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.Name,
		SSLMode:           cfg.DB.SSLMode,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	log.Info("connected to postgres", "host", cfg.DB.Host, "db", cfg.DB.Name)

	var replay cache.ReplayCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, replay cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			replay = cache.NewRedisCache(rdb, cfg.ReplayTTL)
			log.Info("replay cache enabled", "addr", cfg.RedisAddr)
		}
	}

	svc := service.NewOrderService(repo, replay, log)
	router := orderhttp.NewRouter(orderhttp.NewOrdersHandler(svc, cfg.RequestTimeout), cfg.RequestTimeout)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: otelhttp.NewHandler(router, "order-api"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("order api listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		writer := publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer writer.Close()
		poller := publisher.NewOutboxPoller(repo, writer, cfg.OutboxInterval, log)
		g.Go(func() error {
			log.Info("publishing outbox events", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
			poller.Run(gctx)
			return nil
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events stay unpublished")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

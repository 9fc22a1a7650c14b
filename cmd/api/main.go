package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/api"
	"github.com/dunamismax/pixelvault/internal/config"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/logging"
	"github.com/dunamismax/pixelvault/internal/pipeline"
	"github.com/dunamismax/pixelvault/internal/queue"
	"github.com/dunamismax/pixelvault/internal/ratelimit"
	"github.com/dunamismax/pixelvault/internal/storage"
	"github.com/dunamismax/pixelvault/internal/store"
	"github.com/dunamismax/pixelvault/internal/telemetry"
	"github.com/dunamismax/pixelvault/internal/transform/builtin"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(config.New(), *configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	codecs, err := pipeline.NewCodecs(imaging.DefaultProfiles(), logger.Named("codec"))
	if err != nil {
		return fmt.Errorf("build codecs: %w", err)
	}
	defer pipeline.Shutdown()

	presets, err := cfg.Imaging.Presets()
	if err != nil {
		return err
	}
	registry, err := builtin.NewRegistry(logger, cfg.Imaging.Transformations, presets)
	if err != nil {
		return fmt.Errorf("build transformations: %w", err)
	}

	jobStore, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	queueClient := queue.NewClient(cfg.Redis.ClientOpt(), queue.Options{
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Timeout:  cfg.Queue.Timeout,
	})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close error", zap.Error(err))
		}
	}()

	deps := api.Deps{
		Queue:           queueClient,
		Store:           jobStore,
		Transformations: registry,
		Formats:         codecs.Encoders,
	}

	if storageClient, err := storage.NewClient(cfg.Storage.ClientConfig()); err != nil {
		logger.Warn("object storage unavailable", zap.Error(err))
	} else {
		if err := storageClient.EnsureBucket(ctx); err != nil {
			logger.Warn("ensure bucket failed", zap.String("bucket", storageClient.Bucket()), zap.Error(err))
		}
		deps.Storage = storageClient
	}

	if cfg.API.RateLimit.Enabled {
		redisClient := redis.NewClient(cfg.Redis.Options())
		defer func() { _ = redisClient.Close() }()
		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimit.Capacity, cfg.API.RateLimit.Window, "")
		if err != nil {
			return fmt.Errorf("build rate limiter: %w", err)
		}
		deps.RateLimiter = limiter
	}

	app := api.NewServer(logger, deps, cfg.API.PresignTTL)
	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.API.Addr),
			zap.String("backend", pipeline.Backend),
			zap.Strings("transformations", registry.Names()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.DSN == "" {
		return store.NewMemoryJobStore(), func() {}, nil
	}
	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/config"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/imaging/raster"
	"github.com/dunamismax/pixelvault/internal/logging"
	"github.com/dunamismax/pixelvault/internal/pipeline"
	"github.com/dunamismax/pixelvault/internal/queue"
	"github.com/dunamismax/pixelvault/internal/storage"
	"github.com/dunamismax/pixelvault/internal/store"
	"github.com/dunamismax/pixelvault/internal/telemetry"
	"github.com/dunamismax/pixelvault/internal/transform/builtin"
	"github.com/dunamismax/pixelvault/internal/variant"
	"github.com/dunamismax/pixelvault/internal/worker"
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
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	codecs, err := pipeline.NewCodecs(imaging.DefaultProfiles(), logger.Named("codec"), raster.WithMaxPixels(cfg.Imaging.MaxPixels))
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

	storageClient, err := storage.NewClient(cfg.Storage.ClientConfig())
	if err != nil {
		return err
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		return err
	}

	jobStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}

	redisClient := redis.NewClient(cfg.Redis.Options())
	defer func() { _ = redisClient.Close() }()
	index, err := variant.NewRedisIndex(redisClient, "", 0)
	if err != nil {
		return err
	}
	variants, err := variant.NewCache(cfg.Variants, index, storageClient, codecs.Encoders, logger.Named("variant"))
	if err != nil {
		return err
	}

	queueClient := queue.NewClient(cfg.Redis.ClientOpt(), queue.Options{
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Timeout:  cfg.Queue.Timeout,
	})
	defer func() { _ = queueClient.Close() }()

	processorLogger := logger.Named("pipeline")
	objectOpts := []pipeline.Option{pipeline.WithLogger(processorLogger)}
	if variants.Enabled() {
		objectOpts = append(objectOpts, pipeline.WithVariants(variants))
	}

	srv, err := worker.NewServer(logger, cfg, worker.Deps{
		Local: pipeline.New(
			pipeline.LocalFileFetcher{},
			pipeline.LocalFileEmitter{OutputDir: cfg.Worker.LocalOutputDir},
			codecs, registry, pipeline.WithLogger(processorLogger),
		),
		Object: pipeline.New(
			pipeline.ObjectStoreFetcher{Storage: storageClient},
			pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: cfg.Worker.OutputPrefix},
			codecs, registry, objectOpts...,
		),
		Store:     jobStore,
		Variants:  variants,
		Scheduler: queueClient,
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_active_jobs", cfg.Worker.MaxActiveJobs),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Redis.Addr),
		zap.String("backend", pipeline.Backend),
		zap.Bool("variants", variants.Enabled()),
	)
	return srv.Run()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.DSN == "" {
		return store.NewMemoryJobStore(), nil
	}
	return store.NewPostgresJobStore(ctx, cfg.DSN)
}

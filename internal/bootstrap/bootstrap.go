// Package bootstrap provides dependency initialization for the generation
// worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidarena/generation-worker/internal/config"
	"github.com/vidarena/generation-worker/internal/media"
	"github.com/vidarena/generation-worker/internal/mediapipe"
	"github.com/vidarena/generation-worker/internal/provider"
	"github.com/vidarena/generation-worker/internal/provider/fal"
	"github.com/vidarena/generation-worker/internal/provider/runway"
	"github.com/vidarena/generation-worker/internal/queue"
	"github.com/vidarena/generation-worker/internal/storage"
	"github.com/vidarena/generation-worker/internal/store"
	"github.com/vidarena/generation-worker/internal/worker"
)

// Dependencies holds all initialized dependencies for the worker process.
type Dependencies struct {
	Pool     *pgxpool.Pool
	Consumer *queue.Consumer
	Worker   *worker.Worker
	Registry *provider.Registry
}

// NewDependencies creates and initializes all dependencies for the worker.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	blobStore, err := initStorage(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	registry, err := initRegistry(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	pipeline := mediapipe.New(
		blobStore,
		media.NewProber(""),
		media.NewThumbnailer("", media.DefaultThumbnailWidth),
		nil,
		logger,
	)

	w := worker.New(
		store.NewPGVideoRepository(pool),
		store.NewPGModelRepository(pool),
		registry,
		pipeline,
		logger,
	)

	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		URL:         cfg.AMQPURL,
		WorkerCount: cfg.Concurrency,
		MaxAttempts: cfg.MaxAttempts,
	}, w.ProcessJob, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create queue consumer: %w", err)
	}

	return &Dependencies{
		Pool:     pool,
		Consumer: consumer,
		Worker:   w,
		Registry: registry,
	}, nil
}

// Close releases all held resources.
func (d *Dependencies) Close() error {
	err := d.Consumer.Close()
	d.Pool.Close()
	return err
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured, durable uploads disabled",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// initRegistry builds the provider registry from the configured
// credentials. The manual provider is always present so manually-served
// models fail with a stable, descriptive message.
func initRegistry(cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry(provider.NewManual())

	if cfg.FalAPIKey != "" {
		falClient, err := fal.NewClient(cfg.FalAPIKey)
		if err != nil {
			return nil, fmt.Errorf("create fal client: %w", err)
		}
		registry.Register(falClient)
	}

	if cfg.RunwayAPIKey != "" {
		runwayClient, err := runway.NewClient(cfg.RunwayAPIKey)
		if err != nil {
			return nil, fmt.Errorf("create runway client: %w", err)
		}
		registry.Register(runwayClient)
	}

	logger.Info("providers registered", slog.Any("providers", registry.Names()))
	return registry, nil
}

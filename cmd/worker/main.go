// Package main provides the entry point for the generation worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidarena/generation-worker/internal/bootstrap"
	"github.com/vidarena/generation-worker/internal/config"
	"github.com/vidarena/generation-worker/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting generation worker",
		slog.Int("concurrency", cfg.Concurrency),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close dependencies", slog.String("error", err.Error()))
		}
	}()

	// Expose Prometheus metrics and the health endpoint
	metricsSrv := metrics.StartServer(cfg.MetricsPort, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
		}
	}()

	// Consume until the context is cancelled by a shutdown signal
	if err := deps.Consumer.Start(ctx); err != nil {
		return fmt.Errorf("consumer failed: %w", err)
	}

	logger.Info("worker stopped gracefully")
	return nil
}

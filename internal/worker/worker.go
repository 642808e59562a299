// Package worker orchestrates one generation job end to end: it resolves
// the provider, drives the vendor call, runs the media pipeline, prices the
// result from measured metrics, and reconciles the terminal state into the
// video row.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vidarena/generation-worker/internal/mediapipe"
	"github.com/vidarena/generation-worker/internal/metrics"
	"github.com/vidarena/generation-worker/internal/pricing"
	"github.com/vidarena/generation-worker/internal/provider"
	"github.com/vidarena/generation-worker/internal/queue"
	"github.com/vidarena/generation-worker/internal/store"
)

// MediaPipeline is the media side of job processing. Implemented by
// mediapipe.Pipeline.
type MediaPipeline interface {
	DownloadAndUpload(ctx context.Context, sourceURL, id string) (mediapipe.UploadResult, error)
	GenerateThumbnail(ctx context.Context, src, id string) (mediapipe.ThumbnailResult, error)
	Cleanup(ctx context.Context, paths ...string)
}

// Worker processes generation jobs dequeued from the durable queue.
type Worker struct {
	videos   store.VideoRepository
	models   store.ModelRepository
	registry *provider.Registry
	pipeline MediaPipeline
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a Worker.
func New(videos store.VideoRepository, models store.ModelRepository, registry *provider.Registry, pipeline MediaPipeline, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		videos:   videos,
		models:   models,
		registry: registry,
		pipeline: pipeline,
		validate: validator.New(),
		logger:   logger,
	}
}

// ProcessJob is the queue handler for one generation job. A nil return
// acks the message; errors flow into the queue's retry policy unless
// marked non-retryable.
func (w *Worker) ProcessJob(ctx context.Context, body []byte) error {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	var job queue.GenerationJob
	if err := json.Unmarshal(body, &job); err != nil {
		metrics.JobsProcessedTotal.WithLabelValues("dead_lettered").Inc()
		return queue.NonRetryablef("unmarshal job payload: %w", err)
	}
	if err := w.validate.Struct(job); err != nil {
		metrics.JobsProcessedTotal.WithLabelValues("dead_lettered").Inc()
		return queue.NonRetryablef("invalid job payload: %w", err)
	}

	log := w.logger.With(
		slog.String("video_id", job.VideoID.String()),
		slog.String("model_id", job.ModelID.String()),
		slog.String("provider", job.Provider),
	)

	// The video may have been deleted by an admin between enqueue and
	// dequeue. That is a benign race, not an error.
	video, err := w.videos.GetByID(ctx, job.VideoID)
	if err != nil {
		if errors.Is(err, store.ErrVideoNotFound) {
			log.Info("video deleted before processing, skipping job")
			metrics.JobsProcessedTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("load video: %w", err)
	}

	// At-least-once delivery can hand us a job whose video already
	// finished, and an operator may cancel between enqueue and dequeue.
	// A FAILED row is still eligible: that is the queue retry path.
	if video.Status == store.StatusCompleted || video.Status == store.StatusCancelled {
		log.Info("video already finalized, skipping job",
			slog.String("status", string(video.Status)),
		)
		metrics.JobsProcessedTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	// Operators watch in-flight jobs through this transition.
	if err := w.videos.MarkProcessing(ctx, job.VideoID); err != nil {
		if errors.Is(err, store.ErrVideoNotFound) {
			log.Info("video deleted or finalized before processing, skipping job")
			metrics.JobsProcessedTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("mark video processing: %w", err)
	}

	model, err := w.models.GetByID(ctx, job.ModelID)
	if err != nil {
		if errors.Is(err, store.ErrModelNotFound) {
			return w.fail(ctx, log, job, store.Failure{ErrorMessage: err.Error()}, queue.NonRetryable(err))
		}
		return w.fail(ctx, log, job, store.Failure{ErrorMessage: err.Error()}, err)
	}

	prov, err := w.registry.Get(job.Provider)
	if err != nil {
		// Unknown provider is a configuration error: loud, never retried.
		return w.fail(ctx, log, job, store.Failure{ErrorMessage: err.Error()}, queue.NonRetryable(err))
	}

	defaults, err := model.Defaults()
	if err != nil {
		return w.fail(ctx, log, job, store.Failure{ErrorMessage: err.Error()}, queue.NonRetryable(err))
	}

	req := buildRequest(job, defaults)

	log.Info("invoking provider", slog.String("endpoint", job.Endpoint))
	genStart := time.Now()
	result := prov.GenerateVideo(ctx, job.Endpoint, req)
	metrics.StageDuration.WithLabelValues("generate").Observe(time.Since(genStart).Seconds())

	if !result.Success {
		metrics.VendorFailuresTotal.WithLabelValues(job.Provider).Inc()
		failure := store.Failure{
			ErrorMessage:   result.Error,
			GenerationTime: result.GenerationTime.Seconds(),
			RequestID:      result.RequestID,
			RawResponse:    result.RawResponse,
		}
		return w.fail(ctx, log, job, failure, fmt.Errorf("generation failed: %s", result.Error))
	}

	completion, err := w.finalize(ctx, log, job, model, result)
	if err != nil {
		failure := store.Failure{
			ErrorMessage:   err.Error(),
			GenerationTime: result.GenerationTime.Seconds(),
			RequestID:      result.RequestID,
			RawResponse:    result.RawResponse,
		}
		return w.fail(ctx, log, job, failure, err)
	}

	if err := w.videos.MarkCompleted(ctx, job.VideoID, completion); err != nil {
		if errors.Is(err, store.ErrVideoNotFound) {
			log.Warn("video deleted mid-flight, discarding completed result")
			metrics.JobsProcessedTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("mark video completed: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.GenerationCost.WithLabelValues(job.Provider).Add(completion.Cost)
	log.Info("job completed",
		slog.Float64("duration", completion.Duration),
		slog.Int("width", completion.Width),
		slog.Int("height", completion.Height),
		slog.Float64("cost", completion.Cost),
		slog.Float64("generation_time", completion.GenerationTime),
	)
	return nil
}

// finalize turns a successful vendor result into the full set of derived
// fields: durable media artifacts, measured metrics, and cost.
func (w *Worker) finalize(ctx context.Context, log *slog.Logger, job queue.GenerationJob, model *store.Model, result provider.Result) (store.Completion, error) {
	videoID := job.VideoID.String()

	dlStart := time.Now()
	upload, err := w.pipeline.DownloadAndUpload(ctx, result.VideoURL, videoID)
	if err != nil {
		return store.Completion{}, fmt.Errorf("media pipeline: %w", err)
	}
	defer w.pipeline.Cleanup(ctx, upload.LocalPath)
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(dlStart).Seconds())

	// Prefer the already-downloaded file; fall back to the vendor URL.
	thumbSrc := upload.LocalPath
	if thumbSrc == "" {
		thumbSrc = result.VideoURL
	}
	thumbStart := time.Now()
	thumb, err := w.pipeline.GenerateThumbnail(ctx, thumbSrc, videoID)
	if err != nil {
		return store.Completion{}, fmt.Errorf("generate thumbnail: %w", err)
	}
	metrics.StageDuration.WithLabelValues("thumbnail").Observe(time.Since(thumbStart).Seconds())

	measured := resolveMetrics(upload.Metadata, result, job)

	cost := w.price(log, model, measured)

	return store.Completion{
		VideoURL:       upload.URL,
		VideoKey:       upload.Key,
		ThumbnailURL:   thumb.URL,
		ThumbnailKey:   thumb.Key,
		Duration:       measured.Duration,
		Width:          measured.Width,
		Height:         measured.Height,
		FileSize:       upload.FileSize,
		GenerationTime: result.GenerationTime.Seconds(),
		Cost:           cost,
		RequestID:      result.RequestID,
		RawResponse:    result.RawResponse,
	}, nil
}

// price computes the cost from measured metrics. Pricing problems are
// logged, never fatal: the row completes with whatever cost (possibly 0)
// the engine returned.
func (w *Worker) price(log *slog.Logger, model *store.Model, measured pricing.Metrics) float64 {
	cfg, err := model.PricingConfig()
	if err != nil {
		log.Warn("unparseable pricing config, falling back to legacy rate",
			slog.String("error", err.Error()),
		)
		cfg = nil
	}

	res := pricing.Calculate(cfg, measured, model.FallbackRate())
	if res.Err != nil {
		log.Warn("cost could not be computed",
			slog.String("error", res.Err.Error()),
		)
	} else {
		log.Debug("cost computed",
			slog.Float64("cost", res.Cost),
			slog.String("detail", res.Detail),
		)
	}
	return res.Cost
}

// fail persists the FAILED state and returns the primary error so the
// queue's retry policy governs re-attempts. When the row was deleted
// mid-flight the secondary not-found error is swallowed: there is nothing
// left to update.
func (w *Worker) fail(ctx context.Context, log *slog.Logger, job queue.GenerationJob, failure store.Failure, primary error) error {
	metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()

	if err := w.videos.MarkFailed(ctx, job.VideoID, failure); err != nil {
		if errors.Is(err, store.ErrVideoNotFound) {
			log.Warn("video deleted mid-flight, failure state not persisted")
		} else {
			log.Error("persist failed state", slog.String("error", err.Error()))
		}
	}

	log.Warn("job failed", slog.String("error", failure.ErrorMessage))
	return primary
}

// Package queue provides the durable generation job queue on RabbitMQ:
// the enqueue contract consumed by the web layer and the worker-pool
// consumer that drives job processing with bounded retries.
package queue

import (
	"github.com/google/uuid"
)

// GenerationJob is the unit of work enqueued once per (video, model) pair.
// The web layer produces these when a comparison is created, when models
// are added to one, or when a failed video is retried.
type GenerationJob struct {
	JobID        uuid.UUID `json:"jobId"`
	VideoID      uuid.UUID `json:"videoId" validate:"required"`
	ComparisonID uuid.UUID `json:"comparisonId" validate:"required"`
	ModelID      uuid.UUID `json:"modelId" validate:"required"`

	Prompt string `json:"prompt" validate:"required"`
	// SourceImageURL selects image-to-video when present.
	SourceImageURL string `json:"sourceImageUrl,omitempty" validate:"omitempty,url"`

	// Endpoint is the resolved model endpoint for the provider call.
	Endpoint string `json:"endpoint" validate:"required"`
	Provider string `json:"provider" validate:"required"`

	DurationSeconds int            `json:"durationSeconds,omitempty"`
	AspectRatio     string         `json:"aspectRatio,omitempty"`
	Seed            *int64         `json:"seed,omitempty"`
	// AdditionalParams are per-job vendor parameters; they override the
	// model's stored defaults.
	AdditionalParams map[string]any `json:"additionalParams,omitempty"`
}

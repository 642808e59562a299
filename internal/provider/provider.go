// Package provider defines the common contract implemented by every video
// generation vendor adapter, plus the registry used to resolve a provider
// by name at dispatch time.
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Request carries the vendor-agnostic generation parameters. Extra is an
// open bag of vendor-specific parameters merged in by the worker; adapters
// apply it last so it can override the mapped fields.
type Request struct {
	// Prompt is the text prompt for generation.
	Prompt string
	// SourceImageURL is set for image-to-video generation; empty means
	// text-to-video.
	SourceImageURL string
	// DurationSeconds is the requested clip length, 0 when unspecified.
	DurationSeconds int
	// AspectRatio is an abstract ratio such as "16:9"; adapters translate
	// it into whatever notation the vendor accepts.
	AspectRatio string
	// Seed pins the vendor's sampler when supported.
	Seed *int64
	// Extra holds additional vendor-specific parameters.
	Extra map[string]any
}

// Result is the outcome of one generation attempt. Expected vendor-side
// failures (error responses, timeouts, missing URLs) are encoded here with
// Success false rather than returned as Go errors, so the worker can
// persist them verbatim.
type Result struct {
	// Success reports whether the vendor produced a video.
	Success bool
	// VideoURL is the vendor-hosted location of the generated video. It is
	// provisional: the media pipeline re-measures everything after download.
	VideoURL string
	// DurationSeconds, Width and Height are vendor-reported and provisional;
	// measured metrics supersede them.
	DurationSeconds float64
	Width           int
	Height          int
	// GenerationTime is the wall-clock time spent on the vendor call,
	// recorded regardless of outcome.
	GenerationTime time.Duration
	// RequestID is the vendor's identifier for the generation task.
	RequestID string
	// RawResponse is the vendor's last response payload, kept for operator
	// debugging.
	RawResponse json.RawMessage
	// Error describes the failure when Success is false.
	Error string
}

// Provider is the narrow capability every vendor adapter implements.
type Provider interface {
	// Name returns the registry name of the provider.
	Name() string

	// GenerateVideo runs one generation against the given vendor endpoint.
	// It blocks until the vendor reaches a terminal state or an internal
	// ceiling is hit, and never returns expected vendor failures as errors.
	GenerateVideo(ctx context.Context, endpoint string, req Request) Result
}

// Failure builds a failed Result with the elapsed time recorded.
func Failure(errMsg string, elapsed time.Duration) Result {
	return Result{Error: errMsg, GenerationTime: elapsed}
}

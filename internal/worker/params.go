package worker

import (
	"github.com/vidarena/generation-worker/internal/media"
	"github.com/vidarena/generation-worker/internal/pricing"
	"github.com/vidarena/generation-worker/internal/provider"
	"github.com/vidarena/generation-worker/internal/queue"
	"github.com/vidarena/generation-worker/internal/store"
)

// buildRequest resolves the final generation parameters by layering three
// sources, later layers overriding earlier ones: the model's field-mapping
// hints, the model's defaults for the requested direction (image-to-video
// when a source image is present), and the job's own additional parameters.
// An explicit job-level aspect ratio always wins over anything the layers
// produced.
func buildRequest(job queue.GenerationJob, defaults store.Defaults) provider.Request {
	direction := defaults.TextToVideo
	if job.SourceImageURL != "" {
		direction = defaults.ImageToVideo
	}

	extra := make(map[string]any)
	for _, layer := range []map[string]any{defaults.FieldMappings, direction, job.AdditionalParams} {
		for k, v := range layer {
			extra[k] = v
		}
	}

	// The pricing config rides in the defaults blob but is never a vendor
	// parameter.
	delete(extra, store.PricingKey)

	if job.AspectRatio != "" {
		delete(extra, "aspect_ratio")
		delete(extra, "aspectRatio")
	}

	return provider.Request{
		Prompt:          job.Prompt,
		SourceImageURL:  job.SourceImageURL,
		DurationSeconds: job.DurationSeconds,
		AspectRatio:     job.AspectRatio,
		Seed:            job.Seed,
		Extra:           extra,
	}
}

// resolveMetrics picks the final video metrics with the precedence
// probed first, vendor-reported second, originally requested third, and a
// last-resort zero only for duration. Cost is always computed from these,
// never from the requested parameters alone.
func resolveMetrics(probed *media.Metadata, vendor provider.Result, job queue.GenerationJob) pricing.Metrics {
	m := pricing.Metrics{}

	switch {
	case probed != nil && probed.Duration > 0:
		m.Duration = probed.Duration
	case vendor.DurationSeconds > 0:
		m.Duration = vendor.DurationSeconds
	case job.DurationSeconds > 0:
		m.Duration = float64(job.DurationSeconds)
	}

	switch {
	case probed != nil && probed.Width > 0 && probed.Height > 0:
		m.Width = probed.Width
		m.Height = probed.Height
	case vendor.Width > 0 && vendor.Height > 0:
		m.Width = vendor.Width
		m.Height = vendor.Height
	}

	if probed != nil {
		m.HasAudio = probed.HasAudio
	}

	return m
}

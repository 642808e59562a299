package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vidarena/generation-worker/internal/media"
	"github.com/vidarena/generation-worker/internal/provider"
	"github.com/vidarena/generation-worker/internal/queue"
	"github.com/vidarena/generation-worker/internal/store"
)

func TestBuildRequestLayering(t *testing.T) {
	defaults := store.Defaults{
		FieldMappings: map[string]any{"motion": "smooth", "fps": 24},
		TextToVideo:   map[string]any{"fps": 30, "style": "cinematic"},
	}
	job := queue.GenerationJob{
		Prompt:           "a lighthouse at dusk",
		AdditionalParams: map[string]any{"style": "anime"},
	}

	req := buildRequest(job, defaults)

	// Direction defaults override mappings, job params override both.
	assert.Equal(t, "smooth", req.Extra["motion"])
	assert.Equal(t, 30, req.Extra["fps"])
	assert.Equal(t, "anime", req.Extra["style"])
}

func TestBuildRequestSelectsImageToVideoDefaults(t *testing.T) {
	defaults := store.Defaults{
		TextToVideo:  map[string]any{"mode": "t2v"},
		ImageToVideo: map[string]any{"mode": "i2v"},
	}
	job := queue.GenerationJob{
		Prompt:         "animate this",
		SourceImageURL: "https://img.example/src.png",
	}

	req := buildRequest(job, defaults)

	assert.Equal(t, "i2v", req.Extra["mode"])
	assert.Equal(t, "https://img.example/src.png", req.SourceImageURL)
}

func TestBuildRequestStripsPricingKey(t *testing.T) {
	defaults := store.Defaults{
		TextToVideo: map[string]any{
			store.PricingKey: map[string]any{"type": "flat_rate"},
			"fps":            24,
		},
	}

	req := buildRequest(queue.GenerationJob{Prompt: "p"}, defaults)

	assert.NotContains(t, req.Extra, store.PricingKey)
	assert.Equal(t, 24, req.Extra["fps"])
}

func TestBuildRequestJobAspectRatioWins(t *testing.T) {
	defaults := store.Defaults{
		TextToVideo: map[string]any{"aspect_ratio": "1:1", "aspectRatio": "1:1"},
	}
	job := queue.GenerationJob{
		Prompt:           "p",
		AspectRatio:      "16:9",
		AdditionalParams: map[string]any{"aspect_ratio": "4:3"},
	}

	req := buildRequest(job, defaults)

	assert.Equal(t, "16:9", req.AspectRatio)
	assert.NotContains(t, req.Extra, "aspect_ratio")
	assert.NotContains(t, req.Extra, "aspectRatio")
}

func TestBuildRequestKeepsMappedRatioWhenJobHasNone(t *testing.T) {
	defaults := store.Defaults{
		TextToVideo: map[string]any{"aspect_ratio": "1:1"},
	}

	req := buildRequest(queue.GenerationJob{Prompt: "p"}, defaults)

	assert.Equal(t, "1:1", req.Extra["aspect_ratio"])
	assert.Empty(t, req.AspectRatio)
}

func TestResolveMetricsPrefersProbed(t *testing.T) {
	probed := &media.Metadata{Duration: 5.2, Width: 1280, Height: 720, HasAudio: true}
	vendor := provider.Result{DurationSeconds: 5, Width: 640, Height: 360}
	job := queue.GenerationJob{DurationSeconds: 10}

	m := resolveMetrics(probed, vendor, job)

	assert.Equal(t, 5.2, m.Duration)
	assert.Equal(t, 1280, m.Width)
	assert.Equal(t, 720, m.Height)
	assert.True(t, m.HasAudio)
}

func TestResolveMetricsFallsBackToVendorThenRequested(t *testing.T) {
	vendor := provider.Result{DurationSeconds: 5, Width: 640, Height: 360, GenerationTime: time.Second}
	job := queue.GenerationJob{DurationSeconds: 10}

	m := resolveMetrics(nil, vendor, job)
	assert.Equal(t, 5.0, m.Duration)
	assert.Equal(t, 640, m.Width)

	m = resolveMetrics(nil, provider.Result{}, job)
	assert.Equal(t, 10.0, m.Duration)
	assert.Zero(t, m.Width)

	m = resolveMetrics(nil, provider.Result{}, queue.GenerationJob{})
	assert.Zero(t, m.Duration)
}

func TestResolveMetricsIgnoresPartialDimensions(t *testing.T) {
	// A probe that yields width without height is unusable for tiered
	// pricing; the vendor values take over as a pair.
	probed := &media.Metadata{Duration: 5, Width: 1280}
	vendor := provider.Result{Width: 640, Height: 360}

	m := resolveMetrics(probed, vendor, queue.GenerationJob{})

	assert.Equal(t, 640, m.Width)
	assert.Equal(t, 360, m.Height)
}

// Package media provides video probing and thumbnail capture on top of the
// ffmpeg/ffprobe CLIs. Generated videos are always re-measured here; vendor
// metadata is never trusted as final.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
	// ErrNoVideoStream is returned when the probed file has no video stream.
	ErrNoVideoStream = errors.New("media: no video stream found")
)

// Metadata holds the measured properties of a video file. Duration is in
// seconds, decoded from the container, not from vendor-reported values.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// Prober extracts true video metadata via ffprobe.
type Prober struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewProber creates a Prober. An empty path resolves "ffprobe" via PATH.
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

// probeOutput mirrors ffprobe's -print_format json layout for the fields
// the pipeline needs.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe decodes the file's container and stream headers and returns the
// measured duration, dimensions, and audio presence.
func (p *Prober) Probe(ctx context.Context, path string) (Metadata, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Metadata{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Metadata{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Metadata{}, fmt.Errorf("media: parse ffprobe output: %w", err)
	}

	meta := Metadata{}
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("media: parse duration %q: %w", out.Format.Duration, err)
		}
		meta.Duration = d
	}

	foundVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !foundVideo {
				meta.Width = s.Width
				meta.Height = s.Height
				foundVideo = true
			}
		case "audio":
			meta.HasAudio = true
		}
	}
	if !foundVideo {
		return Metadata{}, ErrNoVideoStream
	}

	return meta, nil
}

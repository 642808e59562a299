package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrInvalidDuration is returned when a thumbnail is requested for a video
// with a non-positive duration.
var ErrInvalidDuration = errors.New("media: invalid duration: must be positive")

// DefaultThumbnailWidth is the fixed output width; height follows the
// source aspect ratio.
const DefaultThumbnailWidth = 640

// thumbnailPosition is the fraction of the video duration the frame is
// captured at.
const thumbnailPosition = 0.10

// Thumbnailer captures a single representative frame from a video using the
// ffmpeg CLI.
type Thumbnailer struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	width      int
}

// NewThumbnailer creates a Thumbnailer. An empty path resolves "ffmpeg" via
// PATH; a non-positive width falls back to DefaultThumbnailWidth.
func NewThumbnailer(ffmpegPath string, width int) *Thumbnailer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if width <= 0 {
		width = DefaultThumbnailWidth
	}
	return &Thumbnailer{ffmpegPath: ffmpegPath, width: width}
}

// Capture writes a JPEG frame taken at 10% of the video duration, scaled to
// the configured width with the aspect ratio preserved.
func (t *Thumbnailer) Capture(ctx context.Context, videoPath, outputPath string, duration float64) error {
	if duration <= 0 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidDuration, duration)
	}

	seek := duration * thumbnailPosition

	// scale=w:-2 keeps the height even, which JPEG/yuv420 encoders require.
	filter := fmt.Sprintf("scale=%d:-2", t.width)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", seek),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", filter,
		"-q:v", "3",
		outputPath,
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{Args: args, Stderr: stderr.String(), Err: err}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr
// output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

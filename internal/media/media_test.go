package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg/ffprobe are not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestVideo creates a short solid-color test video, optionally with a
// silent audio track.
func createTestVideo(t *testing.T, path string, duration float64, width, height int, withAudio bool) {
	t.Helper()

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=blue:s=%dx%d:d=%.1f", width, height, duration),
	}
	if withAudio {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
			"-c:a", "aac",
			"-shortest",
		)
	}
	args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", path)

	cmd := exec.Command("ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestProber_Probe(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sample.mp4")
	createTestVideo(t, path, 2.0, 320, 240, false)

	meta, err := NewProber("").Probe(context.Background(), path)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, meta.Duration, 0.3)
	assert.Equal(t, 320, meta.Width)
	assert.Equal(t, 240, meta.Height)
	assert.False(t, meta.HasAudio)
}

func TestProber_Probe_DetectsAudioStream(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "with_audio.mp4")
	createTestVideo(t, path, 1.0, 320, 240, true)

	meta, err := NewProber("").Probe(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, meta.HasAudio)
}

func TestProber_Probe_MissingFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	_, err := NewProber("").Probe(context.Background(), "/nonexistent/file.mp4")
	require.ErrorIs(t, err, ErrFFprobeExecution)
}

func TestThumbnailer_Capture(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	videoPath := filepath.Join(dir, "sample.mp4")
	thumbPath := filepath.Join(dir, "thumb.jpg")
	createTestVideo(t, videoPath, 2.0, 1280, 720, false)

	err := NewThumbnailer("", 640).Capture(context.Background(), videoPath, thumbPath, 2.0)
	require.NoError(t, err)

	info, err := os.Stat(thumbPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	meta, err := NewProber("").Probe(context.Background(), thumbPath)
	require.NoError(t, err)
	assert.Equal(t, 640, meta.Width)
	// 720 * 640/1280 = 360, kept even by scale=640:-2.
	assert.Equal(t, 360, meta.Height)
}

func TestThumbnailer_Capture_RejectsNonPositiveDuration(t *testing.T) {
	err := NewThumbnailer("", 0).Capture(context.Background(), "in.mp4", "out.jpg", 0)
	require.ErrorIs(t, err, ErrInvalidDuration)
}

func TestFFmpegError_Unwrap(t *testing.T) {
	inner := exec.ErrNotFound
	err := &FFmpegError{Args: []string{"-i", "x"}, Stderr: "boom", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "boom")
}

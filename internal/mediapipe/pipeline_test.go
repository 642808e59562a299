package mediapipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidarena/generation-worker/internal/media"
	"github.com/vidarena/generation-worker/internal/storage"
)

// fakeDurableStorage wraps LocalStorage and records durable uploads in
// memory instead of hitting S3.
type fakeDurableStorage struct {
	*storage.LocalStorage
	mu        sync.Mutex
	uploads   map[string][]byte
	uploadErr error
}

func newFakeDurableStorage(t *testing.T) *fakeDurableStorage {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return &fakeDurableStorage{LocalStorage: local, uploads: make(map[string][]byte)}
}

func (f *fakeDurableStorage) Upload(_ context.Context, key, _ string, data io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploads[key] = body
	f.mu.Unlock()
	return "https://cdn.test/" + key, nil
}

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

func createTestVideo(t *testing.T, path string, duration float64) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=green:s=320x240:d=%.1f", duration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeDurableStorage) {
	t.Helper()
	store := newFakeDurableStorage(t)
	p := New(store, media.NewProber(""), media.NewThumbnailer("", 640), nil, nil)
	return p, store
}

func serveFile(t *testing.T, path string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		_, _ = w.Write(data)
	}))
}

func TestPipeline_DownloadAndUpload(t *testing.T) {
	skipIfNoFFmpeg(t)

	videoPath := filepath.Join(t.TempDir(), "src.mp4")
	createTestVideo(t, videoPath, 2.0)
	srv := serveFile(t, videoPath)
	defer srv.Close()

	p, store := newTestPipeline(t)

	res, err := p.DownloadAndUpload(context.Background(), srv.URL, "vid-1")
	require.NoError(t, err)
	defer p.Cleanup(context.Background(), res.LocalPath)

	assert.Equal(t, "videos/vid-1.mp4", res.Key)
	assert.Equal(t, "https://cdn.test/videos/vid-1.mp4", res.URL)
	assert.Positive(t, res.FileSize)

	require.NotNil(t, res.Metadata)
	assert.InDelta(t, 2.0, res.Metadata.Duration, 0.3)
	assert.Equal(t, 320, res.Metadata.Width)
	assert.Equal(t, 240, res.Metadata.Height)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.uploads["videos/vid-1.mp4"], int(res.FileSize))
}

func TestPipeline_DownloadAndUpload_ProbeFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a video at all"))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)

	res, err := p.DownloadAndUpload(context.Background(), srv.URL, "vid-2")
	require.NoError(t, err)
	defer p.Cleanup(context.Background(), res.LocalPath)

	assert.Nil(t, res.Metadata)
	assert.Equal(t, "videos/vid-2.mp4", res.Key)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotEmpty(t, store.uploads["videos/vid-2.mp4"])
}

func TestPipeline_DownloadAndUpload_UploadFailureRemovesDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pretend this is a large video"))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	local, err := storage.NewLocalStorage(tempDir)
	require.NoError(t, err)
	store := &fakeDurableStorage{
		LocalStorage: local,
		uploads:      make(map[string][]byte),
		uploadErr:    errors.New("bucket unavailable"),
	}
	p := New(store, media.NewProber(""), media.NewThumbnailer("", 640), nil, nil)

	_, err = p.DownloadAndUpload(context.Background(), srv.URL, "vid-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")

	// The downloaded temp file must not survive a failed upload; each
	// queue retry would otherwise leave another copy behind.
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipeline_DownloadAndUpload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)

	_, err := p.DownloadAndUpload(context.Background(), srv.URL, "vid-3")
	require.ErrorIs(t, err, ErrDownloadFailed)
}

func TestPipeline_GenerateThumbnail_FromLocalPath(t *testing.T) {
	skipIfNoFFmpeg(t)

	videoPath := filepath.Join(t.TempDir(), "src.mp4")
	createTestVideo(t, videoPath, 2.0)

	p, store := newTestPipeline(t)

	res, err := p.GenerateThumbnail(context.Background(), videoPath, "vid-4")
	require.NoError(t, err)

	assert.Equal(t, "thumbnails/vid-4.jpg", res.Key)
	assert.Equal(t, "https://cdn.test/thumbnails/vid-4.jpg", res.URL)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotEmpty(t, store.uploads["thumbnails/vid-4.jpg"])
}

func TestPipeline_GenerateThumbnail_FromURL(t *testing.T) {
	skipIfNoFFmpeg(t)

	videoPath := filepath.Join(t.TempDir(), "src.mp4")
	createTestVideo(t, videoPath, 2.0)
	srv := serveFile(t, videoPath)
	defer srv.Close()

	p, store := newTestPipeline(t)

	res, err := p.GenerateThumbnail(context.Background(), srv.URL, "vid-5")
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/vid-5.jpg", res.Key)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotEmpty(t, store.uploads["thumbnails/vid-5.jpg"])
}

func TestPipeline_GenerateThumbnail_UnprobeableSource(t *testing.T) {
	skipIfNoFFmpeg(t)

	badPath := filepath.Join(t.TempDir(), "garbage.mp4")
	require.NoError(t, os.WriteFile(badPath, []byte("not a video"), 0600))

	p, _ := newTestPipeline(t)

	_, err := p.GenerateThumbnail(context.Background(), badPath, "vid-6")
	require.Error(t, err)
}

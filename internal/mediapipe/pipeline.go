// Package mediapipe turns a vendor-hosted video URL into durable artifacts:
// it downloads the file, measures its true metadata by decoding, uploads it
// to durable storage, and derives a thumbnail image.
package mediapipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/vidarena/generation-worker/internal/media"
	"github.com/vidarena/generation-worker/internal/storage"
)

// ErrDownloadFailed is returned when the vendor-hosted video cannot be
// fetched.
var ErrDownloadFailed = errors.New("mediapipe: download failed")

// UploadResult is the outcome of DownloadAndUpload. Metadata is nil when
// probing failed; the upload itself still succeeded in that case and the
// worker falls back to vendor-reported metrics.
type UploadResult struct {
	URL      string
	Key      string
	FileSize int64
	Metadata *media.Metadata
	// LocalPath is the downloaded temp file, valid until Cleanup. Passing
	// it to GenerateThumbnail avoids downloading the video twice.
	LocalPath string
}

// ThumbnailResult is the outcome of GenerateThumbnail.
type ThumbnailResult struct {
	URL string
	Key string
}

// Pipeline implements the media side of job processing on top of the
// storage backend and the ffmpeg tooling.
type Pipeline struct {
	storage    storage.Storage
	prober     *media.Prober
	thumb      *media.Thumbnailer
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Pipeline. A nil httpClient gets a client with a download
// timeout suited to multi-hundred-megabyte videos.
func New(store storage.Storage, prober *media.Prober, thumb *media.Thumbnailer, httpClient *http.Client, logger *slog.Logger) *Pipeline {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		storage:    store,
		prober:     prober,
		thumb:      thumb,
		httpClient: httpClient,
		logger:     logger,
	}
}

// DownloadAndUpload fetches the vendor-hosted video, probes its true
// metadata, and uploads the binary under videos/<id>.mp4. Probe failures
// are logged and leave Metadata nil; download and upload failures are
// returned, with the downloaded temp file removed on failure.
func (p *Pipeline) DownloadAndUpload(ctx context.Context, sourceURL, id string) (UploadResult, error) {
	localPath, size, err := p.download(ctx, sourceURL, id)
	if err != nil {
		return UploadResult{}, err
	}

	result := UploadResult{FileSize: size, LocalPath: localPath}

	meta, err := p.prober.Probe(ctx, localPath)
	if err != nil {
		// Vendor metadata takes over downstream; the artifact is still
		// worth keeping.
		p.logger.Warn("probe failed, continuing without measured metadata",
			slog.String("video_id", id),
			slog.String("error", err.Error()),
		)
	} else {
		result.Metadata = &meta
	}

	f, err := p.storage.LoadTemp(ctx, localPath)
	if err != nil {
		p.Cleanup(ctx, localPath)
		return UploadResult{}, fmt.Errorf("mediapipe: open downloaded video: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := fmt.Sprintf("videos/%s.mp4", id)
	url, err := p.storage.Upload(ctx, key, "video/mp4", f)
	if err != nil {
		// The caller never sees LocalPath on the error path, so the
		// downloaded file must be removed here or it leaks per retry.
		p.Cleanup(ctx, localPath)
		return UploadResult{}, fmt.Errorf("mediapipe: upload video: %w", err)
	}

	result.URL = url
	result.Key = key
	return result, nil
}

// GenerateThumbnail captures a frame at 10% of the video duration and
// uploads it under thumbnails/<id>.jpg. src may be the local temp path from
// a prior DownloadAndUpload or a remote URL.
func (p *Pipeline) GenerateThumbnail(ctx context.Context, src, id string) (ThumbnailResult, error) {
	localPath := src
	var downloaded string
	if _, err := os.Stat(src); err != nil {
		localPath, _, err = p.download(ctx, src, id+"_thumbsrc")
		if err != nil {
			return ThumbnailResult{}, err
		}
		downloaded = localPath
	}
	if downloaded != "" {
		defer func() { _ = p.storage.CleanupTemp(ctx, []string{downloaded}) }()
	}

	meta, err := p.prober.Probe(ctx, localPath)
	if err != nil {
		return ThumbnailResult{}, fmt.Errorf("mediapipe: probe for thumbnail: %w", err)
	}

	thumbPath := localPath + ".jpg"
	if err := p.thumb.Capture(ctx, localPath, thumbPath, meta.Duration); err != nil {
		return ThumbnailResult{}, fmt.Errorf("mediapipe: capture thumbnail: %w", err)
	}
	defer func() { _ = p.storage.CleanupTemp(ctx, []string{thumbPath}) }()

	f, err := p.storage.LoadTemp(ctx, thumbPath)
	if err != nil {
		return ThumbnailResult{}, fmt.Errorf("mediapipe: open thumbnail: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := fmt.Sprintf("thumbnails/%s.jpg", id)
	url, err := p.storage.Upload(ctx, key, "image/jpeg", f)
	if err != nil {
		return ThumbnailResult{}, fmt.Errorf("mediapipe: upload thumbnail: %w", err)
	}

	return ThumbnailResult{URL: url, Key: key}, nil
}

// Cleanup removes temp files produced during a job.
func (p *Pipeline) Cleanup(ctx context.Context, paths ...string) {
	live := paths[:0]
	for _, path := range paths {
		if path != "" {
			live = append(live, path)
		}
	}
	if len(live) == 0 {
		return
	}
	if err := p.storage.CleanupTemp(ctx, live); err != nil {
		p.logger.Warn("temp cleanup failed", slog.String("error", err.Error()))
	}
}

// download streams the source URL into temp storage and returns the path
// and byte size.
func (p *Pipeline) download(ctx context.Context, sourceURL, name string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: create request: %w", ErrDownloadFailed, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("%w: status %d from %s", ErrDownloadFailed, resp.StatusCode, sourceURL)
	}

	path, err := p.storage.SaveTemp(ctx, name, resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("%w: save temp: %w", ErrDownloadFailed, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("mediapipe: stat downloaded file: %w", err)
	}

	return path, info.Size(), nil
}

// Package storage provides temporary and durable file storage for the
// generation pipeline. It defines the Storage port plus local-disk and S3
// implementations. Generated videos and thumbnails go to durable storage;
// downloads pass through the temp area and are cleaned up per job.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and durable file storage.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Upload stores data durably under the given key and returns its
	// public URL. Returns ErrDurableNotConfigured when no durable backend
	// is available.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time check that MemoryVideoRepository implements VideoRepository.
var _ VideoRepository = (*MemoryVideoRepository)(nil)

// MemoryVideoRepository is an in-memory implementation of VideoRepository
// with the same transition semantics as the PostgreSQL one. Suitable for
// development and testing; production uses PGVideoRepository.
type MemoryVideoRepository struct {
	mu     sync.RWMutex
	videos map[uuid.UUID]*Video
}

// NewMemoryVideoRepository creates a new in-memory video repository.
func NewMemoryVideoRepository() *MemoryVideoRepository {
	return &MemoryVideoRepository{
		videos: make(map[uuid.UUID]*Video),
	}
}

// Put inserts or replaces a video row.
func (r *MemoryVideoRepository) Put(v *Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos[v.ID] = clone(v)
}

// Delete removes a video row, simulating an admin deletion.
func (r *MemoryVideoRepository) Delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.videos, id)
}

// GetByID fetches a video row. Returns a clone to prevent external
// mutations.
func (r *MemoryVideoRepository) GetByID(_ context.Context, id uuid.UUID) (*Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	return clone(v), nil
}

// MarkProcessing transitions an eligible row to PROCESSING. Finalized rows
// (COMPLETED, CANCELLED) report ErrVideoNotFound, matching the guarded
// UPDATE of the PostgreSQL implementation.
func (r *MemoryVideoRepository) MarkProcessing(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok || v.Status == StatusCompleted || v.Status == StatusCancelled {
		return ErrVideoNotFound
	}
	v.Status = StatusProcessing
	v.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted writes the terminal COMPLETED state and every derived field.
func (r *MemoryVideoRepository) MarkCompleted(_ context.Context, id uuid.UUID, c Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return ErrVideoNotFound
	}
	v.Status = StatusCompleted
	v.VideoURL = c.VideoURL
	v.VideoKey = c.VideoKey
	v.ThumbnailURL = c.ThumbnailURL
	v.ThumbnailKey = c.ThumbnailKey
	v.Duration = c.Duration
	v.Width = c.Width
	v.Height = c.Height
	v.FileSize = c.FileSize
	v.GenerationTime = c.GenerationTime
	v.Cost = c.Cost
	v.RequestID = c.RequestID
	v.RawResponse = append([]byte(nil), c.RawResponse...)
	v.ErrorMessage = ""
	v.UpdatedAt = time.Now()
	return nil
}

// MarkFailed writes the FAILED state with the captured error message.
func (r *MemoryVideoRepository) MarkFailed(_ context.Context, id uuid.UUID, f Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return ErrVideoNotFound
	}
	v.Status = StatusFailed
	v.ErrorMessage = f.ErrorMessage
	v.GenerationTime = f.GenerationTime
	v.RequestID = f.RequestID
	v.RawResponse = append([]byte(nil), f.RawResponse...)
	v.UpdatedAt = time.Now()
	return nil
}

// ResetForRetry clears all derived fields and re-enters QUEUED. Only valid
// from FAILED or CANCELLED.
func (r *MemoryVideoRepository) ResetForRetry(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return ErrVideoNotFound
	}
	if v.Status != StatusFailed && v.Status != StatusCancelled {
		return ErrRetryNotAllowed
	}
	v.Status = StatusQueued
	v.VideoURL = ""
	v.VideoKey = ""
	v.ThumbnailURL = ""
	v.ThumbnailKey = ""
	v.Duration = 0
	v.Width = 0
	v.Height = 0
	v.FileSize = 0
	v.GenerationTime = 0
	v.Cost = 0
	v.RequestID = ""
	v.RawResponse = nil
	v.ErrorMessage = ""
	v.UpdatedAt = time.Now()
	return nil
}

// clone copies a video row so callers never share the stored struct.
func clone(v *Video) *Video {
	c := *v
	c.RawResponse = append([]byte(nil), v.RawResponse...)
	return &c
}

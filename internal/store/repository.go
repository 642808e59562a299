package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Static errors for repository operations.
var (
	// ErrVideoNotFound is returned when a video row does not exist. During
	// generation this is a benign race: admins may delete a video while a
	// job for it is in flight.
	ErrVideoNotFound = errors.New("store: video not found")
	// ErrModelNotFound is returned when a model row does not exist.
	ErrModelNotFound = errors.New("store: model not found")
	// ErrRetryNotAllowed is returned when a retry is requested for a video
	// that is not in a terminal failure state.
	ErrRetryNotAllowed = errors.New("store: retry only allowed from FAILED or CANCELLED")
)

// VideoRepository is the worker's write surface on Video rows.
type VideoRepository interface {
	// GetByID fetches a video row. Returns ErrVideoNotFound if it was
	// deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*Video, error)

	// MarkProcessing transitions the row to PROCESSING so operators can
	// observe in-flight jobs. Returns ErrVideoNotFound if the row is gone
	// or already finalized (COMPLETED or CANCELLED).
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// MarkCompleted writes the terminal COMPLETED state and every derived
	// field in one atomic update.
	MarkCompleted(ctx context.Context, id uuid.UUID, c Completion) error

	// MarkFailed writes the FAILED state with the captured error message
	// and whatever generation time was measured.
	MarkFailed(ctx context.Context, id uuid.UUID, f Failure) error

	// ResetForRetry clears all derived fields and re-enters QUEUED. Only
	// valid from FAILED or CANCELLED; returns ErrRetryNotAllowed otherwise.
	ResetForRetry(ctx context.Context, id uuid.UUID) error
}

// ModelRepository is the worker's read surface on Model rows.
type ModelRepository interface {
	// GetByID fetches a model row. Returns ErrModelNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Model, error)
}

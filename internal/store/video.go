// Package store provides the datastore rows the generation pipeline reads
// and writes: the Video row being produced and the Model row holding the
// vendor defaults. Everything else in the relational schema belongs to the
// presentation layer and is never touched here.
package store

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus represents the lifecycle state of a Video row.
type VideoStatus string

// Video lifecycle statuses. Transitions are monotonic forward except the
// operator-issued retry, which re-enters QUEUED from a terminal failure.
const (
	StatusPending    VideoStatus = "PENDING"
	StatusQueued     VideoStatus = "QUEUED"
	StatusProcessing VideoStatus = "PROCESSING"
	StatusCompleted  VideoStatus = "COMPLETED"
	StatusFailed     VideoStatus = "FAILED"
	StatusCancelled  VideoStatus = "CANCELLED"
)

// IsTerminal returns true if the status is a terminal state.
func (s VideoStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions defines which status transitions are allowed.
// FAILED/CANCELLED back to QUEUED is the operator retry path.
var validTransitions = map[VideoStatus][]VideoStatus{
	StatusPending:    {StatusQueued},
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {},
	StatusFailed:     {StatusQueued},
	StatusCancelled:  {StatusQueued},
}

// CanTransition checks if a transition from one status to another is valid.
func CanTransition(from, to VideoStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Video represents one model's generation attempt within a comparison.
// The worker is the sole writer of status transitions during generation.
type Video struct {
	ID           uuid.UUID
	ComparisonID uuid.UUID
	ModelID      uuid.UUID
	Status       VideoStatus

	// Derived generation fields, set only by the worker.
	VideoURL     string
	VideoKey     string
	ThumbnailURL string
	ThumbnailKey string
	Duration     float64
	Width        int
	Height       int
	FileSize     int64
	// GenerationTime is the vendor wall-clock time in seconds.
	GenerationTime float64
	Cost           float64
	// RequestID is the vendor's identifier for the generation task.
	RequestID string
	// RawResponse is the vendor's last payload, kept for debugging.
	RawResponse []byte
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completion carries every derived field written by the single atomic
// COMPLETED update.
type Completion struct {
	VideoURL       string
	VideoKey       string
	ThumbnailURL   string
	ThumbnailKey   string
	Duration       float64
	Width          int
	Height         int
	FileSize       int64
	GenerationTime float64
	Cost           float64
	RequestID      string
	RawResponse    []byte
}

// Failure carries the fields written when a generation attempt fails.
type Failure struct {
	ErrorMessage   string
	GenerationTime float64
	RequestID      string
	RawResponse    []byte
}

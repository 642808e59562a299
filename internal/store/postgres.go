package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGVideoRepository implements VideoRepository backed by PostgreSQL.
type PGVideoRepository struct {
	pool *pgxpool.Pool
}

// NewPGVideoRepository creates a video repository on the given pool.
func NewPGVideoRepository(pool *pgxpool.Pool) *PGVideoRepository {
	return &PGVideoRepository{pool: pool}
}

// GetByID fetches a video row by id.
func (r *PGVideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*Video, error) {
	query := `
		SELECT id, comparison_id, model_id, status, video_url, video_key,
			thumbnail_url, thumbnail_key, duration, width, height, file_size,
			generation_time, cost, request_id, raw_response, error_message,
			created_at, updated_at
		FROM videos WHERE id=$1`

	v := &Video{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.ComparisonID, &v.ModelID, &status, &v.VideoURL, &v.VideoKey,
		&v.ThumbnailURL, &v.ThumbnailKey, &v.Duration, &v.Width, &v.Height,
		&v.FileSize, &v.GenerationTime, &v.Cost, &v.RequestID, &v.RawResponse,
		&v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("select video: %w", err)
	}
	v.Status = VideoStatus(status)
	return v, nil
}

// MarkProcessing transitions an eligible row to PROCESSING. COMPLETED and
// CANCELLED rows are excluded in the WHERE clause so a duplicate delivery
// can never reopen a finalized video; FAILED stays eligible for queue
// retries. Zero rows affected is reported as ErrVideoNotFound either way:
// for the caller both mean there is nothing left to process.
func (r *PGVideoRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE videos
		SET status=$2, updated_at=NOW()
		WHERE id=$1 AND status != ALL($3)`

	tag, err := r.pool.Exec(ctx, query, id, string(StatusProcessing),
		[]string{string(StatusCompleted), string(StatusCancelled)},
	)
	if err != nil {
		return fmt.Errorf("mark video processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// MarkCompleted writes the terminal COMPLETED state and all derived fields
// in a single atomic update.
func (r *PGVideoRepository) MarkCompleted(ctx context.Context, id uuid.UUID, c Completion) error {
	query := `
		UPDATE videos
		SET status=$2, video_url=$3, video_key=$4, thumbnail_url=$5,
			thumbnail_key=$6, duration=$7, width=$8, height=$9, file_size=$10,
			generation_time=$11, cost=$12, request_id=$13, raw_response=$14,
			error_message='', updated_at=NOW()
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query, id, string(StatusCompleted),
		c.VideoURL, c.VideoKey, c.ThumbnailURL, c.ThumbnailKey,
		c.Duration, c.Width, c.Height, c.FileSize,
		c.GenerationTime, c.Cost, c.RequestID, c.RawResponse,
	)
	if err != nil {
		return fmt.Errorf("mark video completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// MarkFailed writes the FAILED state with the captured error.
func (r *PGVideoRepository) MarkFailed(ctx context.Context, id uuid.UUID, f Failure) error {
	query := `
		UPDATE videos
		SET status=$2, error_message=$3, generation_time=$4, request_id=$5,
			raw_response=$6, updated_at=NOW()
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query, id, string(StatusFailed),
		f.ErrorMessage, f.GenerationTime, f.RequestID, f.RawResponse,
	)
	if err != nil {
		return fmt.Errorf("mark video failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// ResetForRetry clears all derived fields and re-enters QUEUED. The WHERE
// clause enforces that retry is only permitted from terminal failure
// states, so the worker can never race an in-flight update.
func (r *PGVideoRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE videos
		SET status=$2, video_url='', video_key='', thumbnail_url='',
			thumbnail_key='', duration=0, width=0, height=0, file_size=0,
			generation_time=0, cost=0, request_id='', raw_response=NULL,
			error_message='', updated_at=NOW()
		WHERE id=$1 AND status = ANY($3)`

	tag, err := r.pool.Exec(ctx, query, id, string(StatusQueued),
		[]string{string(StatusFailed), string(StatusCancelled)},
	)
	if err != nil {
		return fmt.Errorf("reset video for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from an invalid source state.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrRetryNotAllowed
	}
	return nil
}

// PGModelRepository implements ModelRepository backed by PostgreSQL.
type PGModelRepository struct {
	pool *pgxpool.Pool
}

// NewPGModelRepository creates a model repository on the given pool.
func NewPGModelRepository(pool *pgxpool.Pool) *PGModelRepository {
	return &PGModelRepository{pool: pool}
}

// GetByID fetches a model row by id.
func (r *PGModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*Model, error) {
	query := `
		SELECT id, name, provider, endpoint, cost_per_second, default_parameters
		FROM models WHERE id=$1`

	m := &Model{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.Provider, &m.Endpoint, &m.CostPerSecond, &m.DefaultParameters,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("select model: %w", err)
	}
	return m, nil
}

var (
	_ VideoRepository = (*PGVideoRepository)(nil)
	_ ModelRepository = (*PGModelRepository)(nil)
)

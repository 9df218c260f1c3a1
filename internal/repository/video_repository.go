package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reelhub/review-api/internal/models"
)

// VideoRepository persists the media records owned by submissions.
type VideoRepository struct {
	db *sqlx.DB
}

// NewVideoRepository constructs the repository.
func NewVideoRepository(db *sqlx.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a video row.
func (r *VideoRepository) Create(ctx context.Context, exec sqlx.ExtContext, video *models.Video) error {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	if video.Visibility == "" {
		video.Visibility = models.VideoVisibilityPrivate
	}
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now
	const query = `INSERT INTO videos (id, object_key, title, description, visibility, custom_rate, created_at, updated_at)
	VALUES (:id, :object_key, :title, :description, :visibility, :custom_rate, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, video); err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// GetByID fetches a video by identifier.
func (r *VideoRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Video, error) {
	const query = `SELECT id, object_key, title, description, visibility, custom_rate, created_at, updated_at
	FROM videos WHERE id = $1`
	var video models.Video
	if err := sqlx.GetContext(ctx, r.exec(exec), &video, query, id); err != nil {
		return nil, err
	}
	return &video, nil
}

// SetVisibility flips the publication flag of a video.
func (r *VideoRepository) SetVisibility(ctx context.Context, exec sqlx.ExtContext, id string, visibility models.VideoVisibility) error {
	result, err := r.exec(exec).ExecContext(ctx, `UPDATE videos SET visibility = $2, updated_at = $3 WHERE id = $1`,
		id, visibility, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video visibility: %w", err)
	}
	return rowsAffectedOrNoRows(result, "video visibility")
}

// SetCustomRate sets or clears (nil) the per-video rate override.
func (r *VideoRepository) SetCustomRate(ctx context.Context, id string, rate *int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE videos SET custom_rate = $2, updated_at = $3 WHERE id = $1`,
		id, rate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video rate: %w", err)
	}
	return rowsAffectedOrNoRows(result, "video rate")
}

// Delete removes a video row.
func (r *VideoRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

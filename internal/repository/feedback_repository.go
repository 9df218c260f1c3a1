package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reelhub/review-api/internal/models"
)

const feedbackColumns = `id, submission_id, author_id, content, start_time, end_time, created_at, updated_at`

// FeedbackRepository persists reviewer feedback.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository constructs the repository.
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a feedback row.
func (r *FeedbackRepository) Create(ctx context.Context, exec sqlx.ExtContext, feedback *models.Feedback) error {
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	feedback.CreatedAt = now
	feedback.UpdatedAt = now
	query := `INSERT INTO feedbacks (` + feedbackColumns + `)
	VALUES (:id, :submission_id, :author_id, :content, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, feedback); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// GetByID fetches a feedback row.
func (r *FeedbackRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedbacks WHERE id = $1`
	var feedback models.Feedback
	if err := sqlx.GetContext(ctx, r.exec(exec), &feedback, query, id); err != nil {
		return nil, err
	}
	return &feedback, nil
}

// ListBySubmission returns feedback ordered by anchor time then creation.
func (r *FeedbackRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedbacks WHERE submission_id = $1
	ORDER BY start_time ASC NULLS LAST, created_at ASC`
	var items []models.Feedback
	if err := r.db.SelectContext(ctx, &items, query, submissionID); err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return items, nil
}

// CountBySubmission counts feedback attached to a submission.
func (r *FeedbackRepository) CountBySubmission(ctx context.Context, exec sqlx.ExtContext, submissionID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, `SELECT COUNT(*) FROM feedbacks WHERE submission_id = $1`, submissionID); err != nil {
		return 0, fmt.Errorf("count feedback: %w", err)
	}
	return count, nil
}

// Update rewrites content and anchors of a feedback row.
func (r *FeedbackRepository) Update(ctx context.Context, feedback *models.Feedback) error {
	feedback.UpdatedAt = time.Now().UTC()
	const query = `UPDATE feedbacks SET content = :content, start_time = :start_time, end_time = :end_time, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, feedback)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	return rowsAffectedOrNoRows(result, "feedback update")
}

// Delete removes a feedback row.
func (r *FeedbackRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM feedbacks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feedback: %w", err)
	}
	return rowsAffectedOrNoRows(result, "feedback delete")
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reelhub/review-api/internal/models"
)

const submissionColumns = `id, assignment_id, worker_id, video_id, status, version, version_slot, parent_id,
       reviewer_id, reviewed_at, approved_at, review_summary, created_at, updated_at`

// SubmissionRepository persists submissions and their version chains.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a submission row.
func (r *SubmissionRepository) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusPending
	}
	now := time.Now().UTC()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now
	const query = `INSERT INTO submissions
	(id, assignment_id, worker_id, video_id, status, version, version_slot, parent_id, created_at, updated_at)
	VALUES (:id, :assignment_id, :worker_id, :video_id, :status, :version, :version_slot, :parent_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, submission); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetByID fetches a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := sqlx.GetContext(ctx, r.exec(exec), &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// LockByID fetches a submission and holds a row lock until the transaction ends.
func (r *SubmissionRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE`
	var submission models.Submission
	if err := sqlx.GetContext(ctx, r.exec(exec), &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListChain returns the root and every child of a version chain ordered by slot.
func (r *SubmissionRepository) ListChain(ctx context.Context, exec sqlx.ExtContext, rootID string) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
	WHERE id = $1 OR parent_id = $1 ORDER BY version_slot ASC`
	var chain []models.Submission
	if err := sqlx.SelectContext(ctx, r.exec(exec), &chain, query, rootID); err != nil {
		return nil, fmt.Errorf("list submission chain: %w", err)
	}
	return chain, nil
}

// List returns submissions matching the filter together with the total match count.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if filter.AssignmentID != "" {
		args = append(args, filter.AssignmentID)
		conditions = append(conditions, fmt.Sprintf("assignment_id = $%d", len(args)))
	}
	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		conditions = append(conditions, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM submissions`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM submissions%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		submissionColumns, where, limit, offset)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, total, nil
}

// TransitionParams describes a guarded status change. Review columns are
// written only when the matching field is set; ClearReview nulls them all.
type TransitionParams struct {
	ID            string
	From          models.SubmissionStatus
	To            models.SubmissionStatus
	ReviewerID    *string
	ReviewedAt    *time.Time
	ApprovedAt    *time.Time
	ReviewSummary *string
	ClearReview   bool
}

// Transition moves a submission between states. It returns sql.ErrNoRows when
// the row is missing or no longer in the expected state.
func (r *SubmissionRepository) Transition(ctx context.Context, exec sqlx.ExtContext, params TransitionParams) error {
	setParts := []string{"status = :to", "updated_at = :updated_at"}
	switch {
	case params.ClearReview:
		setParts = append(setParts, "reviewer_id = NULL", "reviewed_at = NULL", "approved_at = NULL", "review_summary = NULL")
	default:
		if params.ReviewerID != nil {
			setParts = append(setParts, "reviewer_id = :reviewer_id")
		}
		if params.ReviewedAt != nil {
			setParts = append(setParts, "reviewed_at = :reviewed_at")
		}
		if params.ApprovedAt != nil {
			setParts = append(setParts, "approved_at = :approved_at")
		}
		if params.ReviewSummary != nil {
			setParts = append(setParts, "review_summary = :review_summary")
		}
	}
	query := fmt.Sprintf("UPDATE submissions SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":             params.ID,
		"from":           params.From,
		"to":             params.To,
		"updated_at":     time.Now().UTC(),
		"reviewer_id":    params.ReviewerID,
		"reviewed_at":    params.ReviewedAt,
		"approved_at":    params.ApprovedAt,
		"review_summary": params.ReviewSummary,
	})
	if err != nil {
		return fmt.Errorf("transition submission: %w", err)
	}
	return rowsAffectedOrNoRows(result, "submission transition")
}

// DeletePending removes a submission that is still PENDING.
func (r *SubmissionRepository) DeletePending(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM submissions WHERE id = $1 AND status = $2`, id, models.SubmissionStatusPending)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return rowsAffectedOrNoRows(result, "submission delete")
}

// ListApprovedInPeriod returns APPROVED submissions last updated within [from, to)
// ordered by worker then creation time. Submissions already itemised in a
// settlement of another period are left out.
func (r *SubmissionRepository) ListApprovedInPeriod(ctx context.Context, exec sqlx.ExtContext, from, to time.Time) ([]models.ApprovedWork, error) {
	const query = `SELECT s.id AS submission_id, s.worker_id, s.video_id, v.title AS video_title, v.custom_rate, s.created_at
	FROM submissions s
	JOIN videos v ON v.id = s.video_id
	WHERE s.status = $1 AND s.updated_at >= $2 AND s.updated_at < $3
	  AND NOT EXISTS (
	    SELECT 1 FROM settlement_items i JOIN settlements st ON st.id = i.settlement_id
	    WHERE i.submission_id = s.id AND NOT (st.year = $4 AND st.month = $5))
	ORDER BY s.worker_id ASC, s.created_at ASC, s.id ASC`
	var rows []models.ApprovedWork
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query,
		models.SubmissionStatusApproved, from, to, from.Year(), int(from.Month())); err != nil {
		return nil, fmt.Errorf("list approved submissions: %w", err)
	}
	return rows, nil
}

// ListAwaitingAnalysis returns submissions without a usable analysis result.
func (r *SubmissionRepository) ListAwaitingAnalysis(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT s.id FROM submissions s
	LEFT JOIN analysis_results a ON a.submission_id = s.id
	WHERE a.submission_id IS NULL OR a.status = 'ERROR'
	ORDER BY s.created_at ASC LIMIT $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("list submissions awaiting analysis: %w", err)
	}
	return ids, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reelhub/review-api/internal/models"
)

const analysisColumns = `submission_id, status, summary, scores, todo_items, insights, is_fallback, attempts,
       error_message, started_at, finished_at, updated_at`

// AnalysisRepository persists per-submission analysis results.
type AnalysisRepository struct {
	db *sqlx.DB
}

// NewAnalysisRepository constructs the repository.
func NewAnalysisRepository(db *sqlx.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Get fetches the analysis result of a submission.
func (r *AnalysisRepository) Get(ctx context.Context, submissionID string) (*models.AnalysisResult, error) {
	query := `SELECT ` + analysisColumns + ` FROM analysis_results WHERE submission_id = $1`
	var result models.AnalysisResult
	if err := r.db.GetContext(ctx, &result, query, submissionID); err != nil {
		return nil, err
	}
	return &result, nil
}

// Claim marks a submission as PROCESSING when it has no result or a failed one.
// It reports false when another caller already holds or finished the work.
func (r *AnalysisRepository) Claim(ctx context.Context, submissionID string, now time.Time) (bool, error) {
	const query = `INSERT INTO analysis_results (submission_id, status, attempts, started_at, updated_at)
	VALUES ($1, 'PROCESSING', 0, $2, $2)
	ON CONFLICT (submission_id) DO UPDATE
	SET status = 'PROCESSING', error_message = NULL, started_at = EXCLUDED.started_at, finished_at = NULL, updated_at = EXCLUDED.updated_at
	WHERE analysis_results.status NOT IN ('PROCESSING', 'DONE')`
	result, err := r.db.ExecContext(ctx, query, submissionID, now)
	if err != nil {
		return false, fmt.Errorf("claim analysis: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check analysis claim rows: %w", err)
	}
	return rows > 0, nil
}

// Finish stores the terminal state of an analysis run.
func (r *AnalysisRepository) Finish(ctx context.Context, result *models.AnalysisResult) error {
	const query = `UPDATE analysis_results SET status = :status, summary = :summary, scores = :scores,
	todo_items = :todo_items, insights = :insights, is_fallback = :is_fallback, attempts = :attempts,
	error_message = :error_message, finished_at = :finished_at, updated_at = :updated_at
	WHERE submission_id = :submission_id`
	res, err := r.db.NamedExecContext(ctx, query, result)
	if err != nil {
		return fmt.Errorf("finish analysis: %w", err)
	}
	return rowsAffectedOrNoRows(res, "analysis finish")
}

// ResetStale flips PROCESSING rows that started before cutoff to ERROR so they can be retried.
func (r *AnalysisRepository) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE analysis_results SET status = 'ERROR', error_message = 'analysis interrupted', updated_at = NOW()
	WHERE status = 'PROCESSING' AND started_at < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale analysis: %w", err)
	}
	return result.RowsAffected()
}

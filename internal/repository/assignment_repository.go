package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/reelhub/review-api/internal/models"
)

// AssignmentRepository reads assignment reference data.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// GetByID fetches an assignment.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, `SELECT id, worker_id, title, created_at FROM assignments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

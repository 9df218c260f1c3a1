package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reelhub/review-api/internal/models"
)

// UserRepository provides access to accounts and worker pricing data.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, full_name, role, base_rate, grade_id, active, created_at, updated_at FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// RateProfile loads the worker's personal rate and grade rate, holding a share
// lock on the worker row for the rest of the transaction.
func (r *UserRepository) RateProfile(ctx context.Context, exec sqlx.ExtContext, workerID string) (*models.WorkerRateProfile, error) {
	const query = `SELECT u.id, u.full_name, u.base_rate, g.base_rate AS grade_rate
	FROM users u
	LEFT JOIN pricing_grades g ON g.id = u.grade_id
	WHERE u.id = $1
	FOR SHARE OF u`
	var profile models.WorkerRateProfile
	if err := sqlx.GetContext(ctx, r.exec(exec), &profile, query, workerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("load worker rate profile: %w", err)
	}
	return &profile, nil
}

// SetBaseRate sets or clears (nil) the worker's personal rate.
func (r *UserRepository) SetBaseRate(ctx context.Context, workerID string, rate *int64) error {
	const query = `UPDATE users SET base_rate = $2, updated_at = $3 WHERE id = $1 AND role = $4`
	result, err := r.db.ExecContext(ctx, query, workerID, rate, time.Now().UTC(), models.RoleWorker)
	if err != nil {
		return fmt.Errorf("update worker rate: %w", err)
	}
	return rowsAffectedOrNoRows(result, "worker rate")
}

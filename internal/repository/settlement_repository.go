package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reelhub/review-api/internal/models"
)

const settlementColumns = `id, worker_id, year, month, status, total_amount, confirmed_at, completed_at, created_at, updated_at`

// SettlementRepository persists monthly settlements and their items.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository constructs the repository.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockPeriod takes a transaction-scoped advisory lock for a settlement period.
// Concurrent generators for the same period serialize on it.
func (r *SettlementRepository) LockPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int) error {
	key := int64(year)*100 + int64(month)
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("lock settlement period: %w", err)
	}
	return nil
}

// CountByPeriod counts settlements already present for a period.
func (r *SettlementRepository) CountByPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, `SELECT COUNT(*) FROM settlements WHERE year = $1 AND month = $2`, year, month); err != nil {
		return 0, fmt.Errorf("count settlements: %w", err)
	}
	return count, nil
}

// Create inserts a settlement header.
func (r *SettlementRepository) Create(ctx context.Context, exec sqlx.ExtContext, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.NewString()
	}
	if settlement.Status == "" {
		settlement.Status = models.SettlementStatusPending
	}
	now := time.Now().UTC()
	settlement.CreatedAt = now
	settlement.UpdatedAt = now
	query := `INSERT INTO settlements (` + settlementColumns + `)
	VALUES (:id, :worker_id, :year, :month, :status, :total_amount, :confirmed_at, :completed_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, settlement); err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// CreateItems inserts settlement items one by one inside the caller's transaction.
func (r *SettlementRepository) CreateItems(ctx context.Context, exec sqlx.ExtContext, items []models.SettlementItem) error {
	const query = `INSERT INTO settlement_items
	(id, settlement_id, submission_id, position, base_amount, adjusted_amount, final_amount, rate_source)
	VALUES (:id, :settlement_id, :submission_id, :position, :base_amount, :adjusted_amount, :final_amount, :rate_source)`
	target := r.exec(exec)
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, &items[i]); err != nil {
			return fmt.Errorf("insert settlement item: %w", err)
		}
	}
	return nil
}

// UpdateTotal writes the settlement total.
func (r *SettlementRepository) UpdateTotal(ctx context.Context, exec sqlx.ExtContext, id string, total int64) error {
	result, err := r.exec(exec).ExecContext(ctx, `UPDATE settlements SET total_amount = $2, updated_at = $3 WHERE id = $1`,
		id, total, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update settlement total: %w", err)
	}
	return rowsAffectedOrNoRows(result, "settlement total")
}

// GetByID fetches a settlement header.
func (r *SettlementRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1`
	var settlement models.Settlement
	if err := sqlx.GetContext(ctx, r.exec(exec), &settlement, query, id); err != nil {
		return nil, err
	}
	return &settlement, nil
}

// LockByID fetches a settlement header and holds a row lock on it.
func (r *SettlementRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1 FOR UPDATE`
	var settlement models.Settlement
	if err := sqlx.GetContext(ctx, r.exec(exec), &settlement, query, id); err != nil {
		return nil, err
	}
	return &settlement, nil
}

// ListByPeriod returns settlements of a period ordered by worker. workerID narrows the list when set.
func (r *SettlementRepository) ListByPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int, workerID string) ([]models.Settlement, error) {
	args := []interface{}{year, month}
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE year = $1 AND month = $2`
	if workerID != "" {
		args = append(args, workerID)
		query += ` AND worker_id = $3`
	}
	query += ` ORDER BY worker_id ASC`
	var settlements []models.Settlement
	if err := sqlx.SelectContext(ctx, r.exec(exec), &settlements, query, args...); err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	return settlements, nil
}

// ListItems returns the items of a settlement in position order.
func (r *SettlementRepository) ListItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) ([]models.SettlementItem, error) {
	const query = `SELECT i.id, i.settlement_id, i.submission_id, i.position, i.base_amount, i.adjusted_amount,
       i.final_amount, i.rate_source, v.title AS video_title
	FROM settlement_items i
	LEFT JOIN submissions s ON s.id = i.submission_id
	LEFT JOIN videos v ON v.id = s.video_id
	WHERE i.settlement_id = $1
	ORDER BY i.position ASC`
	var items []models.SettlementItem
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, settlementID); err != nil {
		return nil, fmt.Errorf("list settlement items: %w", err)
	}
	return items, nil
}

// GetItem fetches a single settlement item.
func (r *SettlementRepository) GetItem(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SettlementItem, error) {
	const query = `SELECT id, settlement_id, submission_id, position, base_amount, adjusted_amount, final_amount, rate_source
	FROM settlement_items WHERE id = $1`
	var item models.SettlementItem
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemAmounts persists the adjusted and final amount of an item.
func (r *SettlementRepository) UpdateItemAmounts(ctx context.Context, exec sqlx.ExtContext, item *models.SettlementItem) error {
	result, err := r.exec(exec).ExecContext(ctx, `UPDATE settlement_items SET adjusted_amount = $2, final_amount = $3 WHERE id = $1`,
		item.ID, item.AdjustedAmount, item.FinalAmount)
	if err != nil {
		return fmt.Errorf("update settlement item: %w", err)
	}
	return rowsAffectedOrNoRows(result, "settlement item")
}

// SumItems returns the sum of final amounts for a settlement.
func (r *SettlementRepository) SumItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) (int64, error) {
	var total int64
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, `SELECT COALESCE(SUM(final_amount), 0) FROM settlement_items WHERE settlement_id = $1`, settlementID); err != nil {
		return 0, fmt.Errorf("sum settlement items: %w", err)
	}
	return total, nil
}

// DeleteItems removes every item of a settlement.
func (r *SettlementRepository) DeleteItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM settlement_items WHERE settlement_id = $1`, settlementID); err != nil {
		return fmt.Errorf("delete settlement items: %w", err)
	}
	return nil
}

// DeletePending removes a settlement that is still PENDING.
func (r *SettlementRepository) DeletePending(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM settlements WHERE id = $1 AND status = $2`, id, models.SettlementStatusPending)
	if err != nil {
		return fmt.Errorf("delete settlement: %w", err)
	}
	return rowsAffectedOrNoRows(result, "settlement delete")
}

// Transition moves a settlement from one status to the next and stamps the
// matching timestamp column. It returns sql.ErrNoRows on a stale status.
func (r *SettlementRepository) Transition(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SettlementStatus) error {
	now := time.Now().UTC()
	stamp := ""
	switch to {
	case models.SettlementStatusConfirmed:
		stamp = ", confirmed_at = $4"
	case models.SettlementStatusCompleted:
		stamp = ", completed_at = $4"
	default:
		return fmt.Errorf("unsupported settlement transition to %s", to)
	}
	query := `UPDATE settlements SET status = $3` + stamp + `, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, id, from, to, now)
	if err != nil {
		return fmt.Errorf("transition settlement: %w", err)
	}
	return rowsAffectedOrNoRows(result, "settlement transition")
}

// HasLockedSubmission reports whether a submission is an item of a settlement
// that is no longer PENDING.
func (r *SettlementRepository) HasLockedSubmission(ctx context.Context, exec sqlx.ExtContext, submissionID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM settlement_items i JOIN settlements s ON s.id = i.settlement_id
	WHERE i.submission_id = $1 AND s.status <> $2)`
	var locked bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &locked, query, submissionID, models.SettlementStatusPending); err != nil {
		return false, fmt.Errorf("check settled submission: %w", err)
	}
	return locked, nil
}

// DetachFromPending removes the items of a submission from PENDING settlements
// and returns the ids of the settlements that lost an item.
func (r *SettlementRepository) DetachFromPending(ctx context.Context, exec sqlx.ExtContext, submissionID string) ([]string, error) {
	const query = `DELETE FROM settlement_items i
	USING settlements s
	WHERE s.id = i.settlement_id AND i.submission_id = $1 AND s.status = $2
	RETURNING i.settlement_id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, submissionID, models.SettlementStatusPending); err != nil {
		return nil, fmt.Errorf("detach settlement items: %w", err)
	}
	return ids, nil
}

package models

import "time"

// SettlementStatus captures payout lifecycle states.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusConfirmed SettlementStatus = "CONFIRMED"
	SettlementStatusCompleted SettlementStatus = "COMPLETED"
)

// Mutable reports whether items and totals may still change.
func (s SettlementStatus) Mutable() bool {
	return s == SettlementStatusPending
}

// Settlement is the monthly payout record of one worker.
type Settlement struct {
	ID          string           `db:"id" json:"id"`
	WorkerID    string           `db:"worker_id" json:"worker_id"`
	Year        int              `db:"year" json:"year"`
	Month       int              `db:"month" json:"month"`
	Status      SettlementStatus `db:"status" json:"status"`
	TotalAmount int64            `db:"total_amount" json:"total_amount"`
	ConfirmedAt *time.Time       `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// SettlementItem is one approved submission's line on a settlement.
type SettlementItem struct {
	ID             string     `db:"id" json:"id"`
	SettlementID   string     `db:"settlement_id" json:"settlement_id"`
	SubmissionID   string     `db:"submission_id" json:"submission_id"`
	Position       int        `db:"position" json:"position"`
	BaseAmount     int64      `db:"base_amount" json:"base_amount"`
	AdjustedAmount *int64     `db:"adjusted_amount" json:"adjusted_amount,omitempty"`
	FinalAmount    int64      `db:"final_amount" json:"final_amount"`
	RateSource     RateSource `db:"rate_source" json:"rate_source"`
	VideoTitle     *string    `db:"video_title" json:"video_title,omitempty"`
}

// ApplyAdjustment sets or clears the manual override and recomputes the final amount.
func (i *SettlementItem) ApplyAdjustment(amount *int64) {
	i.AdjustedAmount = amount
	if amount != nil {
		i.FinalAmount = *amount
		return
	}
	i.FinalAmount = i.BaseAmount
}

// SettlementDetail bundles a settlement with its items and tax breakdown.
type SettlementDetail struct {
	Settlement
	WorkerName string           `json:"worker_name,omitempty"`
	Items      []SettlementItem `json:"items"`
	Tax        TaxBreakdown     `json:"tax"`
}

// TaxBreakdown is the withholding computed on a gross amount.
type TaxBreakdown struct {
	Gross     int64 `json:"gross"`
	IncomeTax int64 `json:"income_tax"`
	LocalTax  int64 `json:"local_tax"`
	TotalTax  int64 `json:"total_tax"`
	NetAmount int64 `json:"net_amount"`
}

// ApprovedWork is an approved submission eligible for settlement in a period.
type ApprovedWork struct {
	SubmissionID string    `db:"submission_id"`
	WorkerID     string    `db:"worker_id"`
	VideoID      string    `db:"video_id"`
	VideoTitle   string    `db:"video_title"`
	CustomRate   *int64    `db:"custom_rate"`
	CreatedAt    time.Time `db:"created_at"`
}

// SettlementSummary is one row of a generation result.
type SettlementSummary struct {
	SettlementID string `json:"settlement_id"`
	WorkerID     string `json:"worker_id"`
	TotalAmount  int64  `json:"total_amount"`
	ItemCount    int    `json:"item_count"`
}

// RegenerationReport describes what a regenerate pass touched.
type RegenerationReport struct {
	Created   []SettlementSummary `json:"created"`
	Refreshed []SettlementSummary `json:"refreshed"`
	Removed   []string            `json:"removed"`
	Skipped   []SettlementSummary `json:"skipped"`
}

// PricingGrade is a named rate tier assigned to workers.
type PricingGrade struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	BaseRate int64  `db:"base_rate" json:"base_rate"`
}

// RateSource names the layer that produced a resolved rate.
type RateSource string

const (
	RateSourceVideo  RateSource = "VIDEO"
	RateSourceWorker RateSource = "WORKER"
	RateSourceGrade  RateSource = "GRADE"
	RateSourceNone   RateSource = "NONE"
)

// WorkerRateProfile is the rate-relevant view of a worker and their grade.
type WorkerRateProfile struct {
	WorkerID  string `db:"id"`
	FullName  string `db:"full_name"`
	BaseRate  *int64 `db:"base_rate"`
	GradeRate *int64 `db:"grade_rate"`
}

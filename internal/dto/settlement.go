package dto

import "github.com/reelhub/review-api/internal/models"

// SettlementPeriodRequest identifies a settlement month.
type SettlementPeriodRequest struct {
	Year  int `json:"year" form:"year" validate:"required,gte=2000,lte=2100"`
	Month int `json:"month" form:"month" validate:"required,gte=1,lte=12"`
}

// GenerateSettlementsResponse lists the settlements created for a period.
type GenerateSettlementsResponse struct {
	Year        int                        `json:"year"`
	Month       int                        `json:"month"`
	Settlements []models.SettlementSummary `json:"settlements"`
}

// AdjustItemRequest captures PATCH /settlement-items/:id. A null amount removes
// the manual adjustment.
type AdjustItemRequest struct {
	Amount *int64 `json:"amount" validate:"omitempty,gte=0"`
}

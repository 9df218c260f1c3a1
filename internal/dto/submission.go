package dto

import "github.com/reelhub/review-api/internal/models"

// CreateSubmissionRequest captures POST /submissions payload. The media object
// must already be uploaded to the bucket under ObjectKey.
type CreateSubmissionRequest struct {
	AssignmentID string  `json:"assignmentId" validate:"required"`
	ObjectKey    string  `json:"objectKey" validate:"required,max=512"`
	Title        string  `json:"title" validate:"required,max=200"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=4000"`
}

// BumpSubmissionRequest captures POST /submissions/:id/bump payload. Title and
// description are copied from the previous version unless provided.
type BumpSubmissionRequest struct {
	ObjectKey   string  `json:"objectKey" validate:"required,max=512"`
	Title       *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=4000"`
}

// ReviewDecisionRequest carries the optional summary or reason of approve/reject.
type ReviewDecisionRequest struct {
	Summary *string `json:"summary,omitempty" validate:"omitempty,max=4000"`
}

// SubmissionQuery filters GET /submissions.
type SubmissionQuery struct {
	AssignmentID string                    `form:"assignmentId"`
	WorkerID     string                    `form:"workerId"`
	Status       []models.SubmissionStatus `form:"status"`
	Page         int                       `form:"page"`
	PageSize     int                       `form:"pageSize"`
}

// CreateFeedbackRequest captures POST /submissions/:id/feedbacks payload.
type CreateFeedbackRequest struct {
	Content   string   `json:"content" validate:"required,max=4000"`
	StartTime *float64 `json:"startTime,omitempty" validate:"omitempty,gte=0"`
	EndTime   *float64 `json:"endTime,omitempty" validate:"omitempty,gte=0"`
}

// UpdateFeedbackRequest captures PATCH /feedbacks/:id payload.
type UpdateFeedbackRequest struct {
	Content   *string  `json:"content,omitempty" validate:"omitempty,min=1,max=4000"`
	StartTime *float64 `json:"startTime,omitempty" validate:"omitempty,gte=0"`
	EndTime   *float64 `json:"endTime,omitempty" validate:"omitempty,gte=0"`
}

// SetRateRequest captures PUT /videos/:id/rate and PUT /workers/:id/rate.
// A null amount clears the override.
type SetRateRequest struct {
	Amount *int64 `json:"amount" validate:"omitempty,gte=0"`
}

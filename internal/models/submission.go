package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SubmissionStatus captures the review lifecycle of a submission.
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "PENDING"
	SubmissionStatusInReview SubmissionStatus = "IN_REVIEW"
	SubmissionStatusApproved SubmissionStatus = "APPROVED"
	SubmissionStatusRejected SubmissionStatus = "REJECTED"
	SubmissionStatusRevised  SubmissionStatus = "REVISED"
)

// Valid reports whether the status is one of the known states.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusInReview, SubmissionStatusApproved,
		SubmissionStatusRejected, SubmissionStatusRevised:
		return true
	}
	return false
}

// Submission is one uploaded version of an assignment deliverable.
type Submission struct {
	ID            string           `db:"id" json:"id"`
	AssignmentID  string           `db:"assignment_id" json:"assignment_id"`
	WorkerID      string           `db:"worker_id" json:"worker_id"`
	VideoID       string           `db:"video_id" json:"video_id"`
	Status        SubmissionStatus `db:"status" json:"status"`
	Version       string           `db:"version" json:"version"`
	VersionSlot   int              `db:"version_slot" json:"version_slot"`
	ParentID      *string          `db:"parent_id" json:"parent_id,omitempty"`
	ReviewerID    *string          `db:"reviewer_id" json:"reviewer_id,omitempty"`
	ReviewedAt    *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ApprovedAt    *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	ReviewSummary *string          `db:"review_summary" json:"review_summary,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// RootID returns the identifier of the chain root this submission belongs to.
func (s *Submission) RootID() string {
	if s.ParentID != nil && *s.ParentID != "" {
		return *s.ParentID
	}
	return s.ID
}

// SubmissionFilter captures list criteria.
type SubmissionFilter struct {
	AssignmentID string
	WorkerID     string
	Status       []SubmissionStatus
	Limit        int
	Offset       int
}

// SubmissionDetail bundles a submission with its media record and chain.
type SubmissionDetail struct {
	Submission
	Video    *Video       `json:"video,omitempty"`
	Current  bool         `json:"current"`
	Versions []Submission `json:"versions"`
}

// VideoVisibility controls whether approved media is publicly reachable.
type VideoVisibility string

const (
	VideoVisibilityPrivate VideoVisibility = "PRIVATE"
	VideoVisibilityPublic  VideoVisibility = "PUBLIC"
)

// Video is the media record owned by exactly one submission.
type Video struct {
	ID          string          `db:"id" json:"id"`
	ObjectKey   string          `db:"object_key" json:"object_key"`
	Title       string          `db:"title" json:"title"`
	Description *string         `db:"description" json:"description,omitempty"`
	Visibility  VideoVisibility `db:"visibility" json:"visibility"`
	CustomRate  *int64          `db:"custom_rate" json:"custom_rate,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Assignment is the reference work item a submission answers.
type Assignment struct {
	ID        string    `db:"id" json:"id"`
	WorkerID  *string   `db:"worker_id" json:"worker_id,omitempty"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Feedback is a reviewer comment optionally anchored to a time range.
type Feedback struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	AuthorID     string    `db:"author_id" json:"author_id"`
	Content      string    `db:"content" json:"content"`
	StartTime    *float64  `db:"start_time" json:"start_time,omitempty"`
	EndTime      *float64  `db:"end_time" json:"end_time,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FormatVersion renders the dotted version label for a major/minor pair.
func FormatVersion(major, minor int) string {
	return fmt.Sprintf("%d.%d", major, minor)
}

// ParseVersion splits a dotted version label. Malformed labels yield 1.0.
func ParseVersion(raw string) (major, minor int) {
	parts := strings.SplitN(strings.TrimSpace(raw), ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil || major <= 0 {
		return 1, 0
	}
	if len(parts) == 2 {
		if m, err := strconv.Atoi(parts[1]); err == nil && m >= 0 {
			minor = m
		}
	}
	return major, minor
}

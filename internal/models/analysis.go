package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisStatus captures the per-submission analysis lifecycle. A missing
// row means the submission has never been analysed.
type AnalysisStatus string

const (
	AnalysisStatusNone       AnalysisStatus = "NONE"
	AnalysisStatusProcessing AnalysisStatus = "PROCESSING"
	AnalysisStatusDone       AnalysisStatus = "DONE"
	AnalysisStatusError      AnalysisStatus = "ERROR"
)

// AnalysisScores are the 0-100 quality scores reported for a video.
type AnalysisScores struct {
	Overall      int `json:"overall"`
	Audio        int `json:"audio"`
	Visual       int `json:"visual"`
	Editing      int `json:"editing"`
	Storytelling int `json:"storytelling"`
}

// Value marshals scores to JSON for persistence.
func (s AnalysisScores) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis scores: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the scores struct.
func (s *AnalysisScores) Scan(value interface{}) error {
	data, err := jsonBytes(value, "AnalysisScores")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = AnalysisScores{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal analysis scores: %w", err)
	}
	return nil
}

// StringList is a JSONB array of strings.
type StringList []string

// Value marshals the list; nil is stored as an empty array.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON array.
func (l *StringList) Scan(value interface{}) error {
	data, err := jsonBytes(value, "StringList")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal string list: %w", err)
	}
	*l = out
	return nil
}

func jsonBytes(value interface{}, target string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T for %s", value, target)
	}
}

// AnalysisResult is the stored outcome of the external analysis of one submission.
type AnalysisResult struct {
	SubmissionID string         `db:"submission_id" json:"submission_id"`
	Status       AnalysisStatus `db:"status" json:"status"`
	Summary      *string        `db:"summary" json:"summary,omitempty"`
	Scores       AnalysisScores `db:"scores" json:"scores"`
	TodoItems    StringList     `db:"todo_items" json:"todo_items"`
	Insights     StringList     `db:"insights" json:"insights"`
	IsFallback   bool           `db:"is_fallback" json:"is_fallback"`
	Attempts     int            `db:"attempts" json:"attempts"`
	ErrorMessage *string        `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time     `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AnalysisPayload is the structured answer of the analysis service.
type AnalysisPayload struct {
	Summary   string         `json:"summary"`
	Scores    AnalysisScores `json:"scores"`
	TodoItems []string       `json:"todoItems"`
	Insights  []string       `json:"insights"`
}

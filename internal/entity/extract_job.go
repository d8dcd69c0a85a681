package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractJob is one ledger row: a single extraction request and its result.
type ExtractJob struct {
	ID            uuid.UUID       `json:"id"`
	Kind          string          `json:"kind"`
	Format        string          `json:"format"`
	ContentHash   string          `json:"content_hash"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Status        string          `json:"status"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	Confidence    *float64        `json:"confidence,omitempty"`
	NeedsReview   bool            `json:"needs_review"`
	OCRText       *string         `json:"ocr_text,omitempty"`
	ExtractedJSON json.RawMessage `json:"extracted_json,omitempty"`
	FieldErrors   json.RawMessage `json:"field_errors,omitempty"`
	ModelName     *string         `json:"model_name,omitempty"`
	ModelParams   json.RawMessage `json:"model_params,omitempty"`
}

// Duration is the wall time of a finished job, or zero while running.
func (j *ExtractJob) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

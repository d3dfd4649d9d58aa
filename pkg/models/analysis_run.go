package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisRun is the append-only audit record of one execution of the batch
// pipeline. Created at run start, updated at batch boundaries, never mutated
// after finalization.
type AnalysisRun struct {
	ID               uuid.UUID      `db:"id"                json:"id"`
	FlowID           uuid.UUID      `db:"flow_id"           json:"flow_id"`
	Status           AnalysisStatus `db:"status"            json:"status"`
	StartedAt        time.Time      `db:"started_at"        json:"started_at"`
	CompletedAt      *time.Time     `db:"completed_at"      json:"completed_at,omitempty"`
	DurationMs       *int64         `db:"duration_ms"       json:"duration_ms,omitempty"`
	ItemsAnalyzed    *int           `db:"items_analyzed"    json:"items_analyzed,omitempty"`
	BatchesProcessed *int           `db:"batches_processed" json:"batches_processed,omitempty"`
	ErrorMessage     *string        `db:"error_message"     json:"error_message,omitempty"`
}

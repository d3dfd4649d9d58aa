// Package models contains shared data models used across the PainScope codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the closed set of flow analysis states.
type AnalysisStatus string

const (
	AnalysisIdle      AnalysisStatus = "idle"
	AnalysisRunning   AnalysisStatus = "running"
	AnalysisSucceeded AnalysisStatus = "succeeded"
	AnalysisFailed    AnalysisStatus = "failed"
	AnalysisCanceled  AnalysisStatus = "canceled"
)

// Valid reports whether s is a known analysis status.
func (s AnalysisStatus) Valid() bool {
	switch s {
	case AnalysisIdle, AnalysisRunning, AnalysisSucceeded, AnalysisFailed, AnalysisCanceled:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal run state.
func (s AnalysisStatus) Terminal() bool {
	switch s {
	case AnalysisSucceeded, AnalysisFailed, AnalysisCanceled:
		return true
	}
	return false
}

// CanStart reports whether a new analysis run may begin from s.
// Only a flow that is not currently running may enter running.
func (s AnalysisStatus) CanStart() bool {
	return s != AnalysisRunning
}

// AnalysisMode selects how reconciliation treats existing clusters.
type AnalysisMode string

const (
	// ModeFull discards all existing clusters for the flow before writing.
	ModeFull AnalysisMode = "full"
	// ModeRefine keeps existing clusters and merges new output into them.
	ModeRefine AnalysisMode = "refine"
)

// Valid reports whether m is a known analysis mode.
func (m AnalysisMode) Valid() bool {
	return m == ModeFull || m == ModeRefine
}

// AnalysisProgress is the point-in-time snapshot persisted on a running flow.
// Batch counts batches completed, so batch==totalBatches only after the loop.
type AnalysisProgress struct {
	Batch          int `json:"batch"`
	TotalBatches   int `json:"totalBatches"`
	ItemsProcessed int `json:"itemsProcessed"`
	TotalItems     int `json:"totalItems"`
}

// IngestStatus mirrors AnalysisStatus for the ingestion side of a flow.
type IngestStatus string

const (
	IngestIdle      IngestStatus = "idle"
	IngestRunning   IngestStatus = "running"
	IngestSucceeded IngestStatus = "succeeded"
	IngestFailed    IngestStatus = "failed"
)

// IngestProgress tracks a Reddit ingestion in flight.
type IngestProgress struct {
	Step              string `json:"step"`
	PostsFound        int    `json:"postsFound"`
	PostsProcessed    int    `json:"postsProcessed"`
	CommentsProcessed int    `json:"commentsProcessed"`
	TotalPosts        int    `json:"totalPosts"`
}

// Flow is a user-defined analysis workspace containing ingested items and
// derived clusters. Analysis fields are mutated only by the batch orchestrator.
type Flow struct {
	ID                 uuid.UUID         `db:"id"                   json:"id"`
	Name               string            `db:"name"                 json:"name"`
	Description        *string           `db:"description"          json:"description,omitempty"`
	AnalysisStatus     AnalysisStatus    `db:"analysis_status"      json:"analysis_status"`
	AnalysisProgress   *AnalysisProgress `db:"analysis_progress"    json:"analysis_progress,omitempty"`
	AnalysisError      *string           `db:"analysis_error"       json:"analysis_error,omitempty"`
	AnalysisDurationMs *int64            `db:"analysis_duration_ms" json:"analysis_duration_ms,omitempty"`
	LastAnalyzedAt     *time.Time        `db:"last_analyzed_at"     json:"last_analyzed_at,omitempty"`
	IngestStatus       IngestStatus      `db:"ingest_status"        json:"ingest_status"`
	IngestProgress     *IngestProgress   `db:"ingest_progress"      json:"ingest_progress,omitempty"`
	IngestError        *string           `db:"ingest_error"         json:"ingest_error,omitempty"`
	IngestDurationMs   *int64            `db:"ingest_duration_ms"   json:"ingest_duration_ms,omitempty"`
	CreatedAt          time.Time         `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at"           json:"updated_at"`
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/analysis"
	"github.com/painscope/painscope/internal/api/response"
	"github.com/painscope/painscope/internal/llm"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

// AnalysisService is the orchestrator surface the analysis handlers depend on.
type AnalysisService interface {
	Start(ctx context.Context, flowID uuid.UUID, mode models.AnalysisMode) (*models.AnalysisRun, error)
	Cancel(ctx context.Context, flowID uuid.UUID) (bool, error)
	Status(ctx context.Context, flowID uuid.UUID) (*analysis.StatusSnapshot, error)
	MergeClusters(ctx context.Context, flowID, sourceID, targetID uuid.UUID) (*models.Cluster, error)
}

// NewStartAnalysis returns the handler for POST /api/v1/flows/{flowID}/analyze.
// The run executes in the background; a 202 with the run record means it was
// accepted, not that it finished.
func NewStartAnalysis(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}

		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		mode := models.AnalysisMode(req.Mode)
		if req.Mode == "" {
			mode = models.ModeFull
		}
		if !mode.Valid() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"mode must be 'full' or 'refine'", nil)
			return
		}

		run, err := svc.Start(r.Context(), flowID, mode)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "FLOW_NOT_FOUND", "Flow not found", nil)
			case errors.Is(err, analysis.ErrAlreadyRunning):
				response.Error(w, http.StatusConflict, "ANALYSIS_RUNNING",
					"Analysis is already running for this flow", nil)
			case errors.Is(err, analysis.ErrNoItems):
				response.Error(w, http.StatusBadRequest, "NO_ITEMS",
					"Flow has no items to analyze", nil)
			case errors.Is(err, llm.ErrUnreachable), errors.Is(err, llm.ErrTimeout):
				response.Error(w, http.StatusServiceUnavailable, "LLM_UNAVAILABLE",
					err.Error(), nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}
		response.Accepted(w, run)
	}
}

// NewCancelAnalysis returns the handler for POST /api/v1/flows/{flowID}/analyze/cancel.
func NewCancelAnalysis(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}

		canceled, err := svc.Cancel(r.Context(), flowID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "FLOW_NOT_FOUND", "Flow not found", nil)
			case errors.Is(err, analysis.ErrNotRunning):
				response.Error(w, http.StatusConflict, "NO_ACTIVE_ANALYSIS",
					"No analysis is running for this flow", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}
		response.JSON(w, map[string]any{"canceled": canceled})
	}
}

// NewAnalysisStatus returns the handler for GET /api/v1/flows/{flowID}/analysis-status.
func NewAnalysisStatus(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}

		snapshot, err := svc.Status(r.Context(), flowID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "FLOW_NOT_FOUND", "Flow not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, snapshot)
	}
}

// NewMergeClusters returns the handler for POST /api/v1/flows/{flowID}/clusters/merge.
func NewMergeClusters(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}

		var req struct {
			SourceClusterID string `json:"sourceClusterId"`
			TargetClusterID string `json:"targetClusterId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		sourceID, err := uuid.Parse(req.SourceClusterID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"sourceClusterId must be a valid UUID", nil)
			return
		}
		targetID, err := uuid.Parse(req.TargetClusterID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"targetClusterId must be a valid UUID", nil)
			return
		}

		merged, err := svc.MergeClusters(r.Context(), flowID, sourceID, targetID)
		if err != nil {
			switch {
			case errors.Is(err, analysis.ErrMergeSelf):
				response.Error(w, http.StatusBadRequest, "MERGE_SELF",
					"Cannot merge a cluster into itself", nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "CLUSTER_NOT_FOUND",
					"Cluster not found in this flow", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}
		response.JSON(w, merged)
	}
}

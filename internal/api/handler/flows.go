// Package handler contains the HTTP handlers for the PainScope API. Each
// constructor takes the narrow interface it needs and returns an
// http.HandlerFunc, so tests can substitute fakes without a router.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/api/response"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

const maxFlowNameLen = 120

// FlowStore is the store surface the flow handlers depend on.
type FlowStore interface {
	CreateFlow(ctx context.Context, flow *models.Flow) error
	GetFlow(ctx context.Context, id uuid.UUID) (*models.Flow, error)
	ListFlows(ctx context.Context) ([]*models.Flow, error)
	DeleteFlow(ctx context.Context, id uuid.UUID) error
	ListClustersDetailed(ctx context.Context, flowID uuid.UUID) ([]*models.Cluster, error)
	CountSourceItems(ctx context.Context, flowID uuid.UUID) (int, error)
}

// NewCreateFlow returns the handler for POST /api/v1/flows.
func NewCreateFlow(s FlowStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string  `json:"name"`
			Description *string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if len(req.Name) > maxFlowNameLen {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is too long", nil)
			return
		}

		now := time.Now().UTC()
		flow := &models.Flow{
			ID:             uuid.New(),
			Name:           req.Name,
			Description:    req.Description,
			AnalysisStatus: models.AnalysisIdle,
			IngestStatus:   models.IngestIdle,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.CreateFlow(r.Context(), flow); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create flow", nil)
			return
		}
		response.Created(w, flow)
	}
}

// NewListFlows returns the handler for GET /api/v1/flows.
func NewListFlows(s FlowStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flows, err := s.ListFlows(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list flows", nil)
			return
		}
		if flows == nil {
			flows = []*models.Flow{}
		}
		response.JSON(w, flows)
	}
}

// NewGetFlow returns the handler for GET /api/v1/flows/{flowID}. The response
// carries the flow, its clusters (with ideas and members), and the item count.
func NewGetFlow(s FlowStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}

		flow, err := s.GetFlow(r.Context(), flowID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "FLOW_NOT_FOUND", "Flow not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load flow", nil)
			return
		}
		clusters, err := s.ListClustersDetailed(r.Context(), flowID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load clusters", nil)
			return
		}
		itemsCount, err := s.CountSourceItems(r.Context(), flowID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to count items", nil)
			return
		}
		if clusters == nil {
			clusters = []*models.Cluster{}
		}

		response.JSON(w, map[string]any{
			"flow":       flow,
			"clusters":   clusters,
			"itemsCount": itemsCount,
		})
	}
}

// NewDeleteFlow returns the handler for DELETE /api/v1/flows/{flowID}.
// Deleting a flow cascades to its sources, items, runs, and clusters.
func NewDeleteFlow(s FlowStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}
		if err := s.DeleteFlow(r.Context(), flowID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "FLOW_NOT_FOUND", "Flow not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete flow", nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/api/response"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

// ClusterStore is the store surface the cluster and item handlers depend on.
type ClusterStore interface {
	GetCluster(ctx context.Context, id uuid.UUID) (*models.Cluster, error)
	UpdateClusterText(ctx context.Context, id uuid.UUID, label, summary *string) error
	DeleteCluster(ctx context.Context, id uuid.UUID) error
	GetClusterMember(ctx context.Context, id uuid.UUID) (*models.ClusterMember, error)
	DeleteClusterMember(ctx context.Context, id uuid.UUID) error
	GetSourceItem(ctx context.Context, id uuid.UUID) (*models.SourceItem, error)
	DeleteSourceItem(ctx context.Context, id uuid.UUID) error
}

// flowCluster loads a cluster and verifies it belongs to the flow in the URL.
func flowCluster(w http.ResponseWriter, r *http.Request, s ClusterStore, flowID, clusterID uuid.UUID) (*models.Cluster, bool) {
	cluster, err := s.GetCluster(r.Context(), clusterID)
	if err == nil && cluster.FlowID != flowID {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "CLUSTER_NOT_FOUND",
				"Cluster not found in this flow", nil)
		} else {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load cluster", nil)
		}
		return nil, false
	}
	return cluster, true
}

// NewEditCluster returns the handler for PATCH /api/v1/flows/{flowID}/clusters/{clusterID}.
// Only label and summary are user-editable; scores and tags belong to the
// analysis pipeline and manual merge.
func NewEditCluster(s ClusterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}
		clusterID, ok := urlUUID(w, r, "clusterID")
		if !ok {
			return
		}

		var req struct {
			Label   *string `json:"label"`
			Summary *string `json:"summary"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Label == nil && req.Summary == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"at least one of label or summary is required", nil)
			return
		}
		if req.Label != nil {
			if *req.Label == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"label must not be empty", nil)
				return
			}
			if len([]rune(*req.Label)) > models.MaxClusterLabelLen {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"label is too long", nil)
				return
			}
		}
		if req.Summary != nil && len([]rune(*req.Summary)) > models.MaxClusterSummaryLen {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"summary is too long", nil)
			return
		}

		if _, ok := flowCluster(w, r, s, flowID, clusterID); !ok {
			return
		}
		if err := s.UpdateClusterText(r.Context(), clusterID, req.Label, req.Summary); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to update cluster", nil)
			return
		}

		cluster, err := s.GetCluster(r.Context(), clusterID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load cluster", nil)
			return
		}
		response.JSON(w, cluster)
	}
}

// NewDeleteCluster returns the handler for DELETE /api/v1/flows/{flowID}/clusters/{clusterID}.
// Deletion cascades to the cluster's idea and members.
func NewDeleteCluster(s ClusterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}
		clusterID, ok := urlUUID(w, r, "clusterID")
		if !ok {
			return
		}
		if _, ok := flowCluster(w, r, s, flowID, clusterID); !ok {
			return
		}
		if err := s.DeleteCluster(r.Context(), clusterID); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete cluster", nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewDeleteClusterMember returns the handler for
// DELETE /api/v1/flows/{flowID}/clusters/{clusterID}/members/{memberID}.
func NewDeleteClusterMember(s ClusterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}
		clusterID, ok := urlUUID(w, r, "clusterID")
		if !ok {
			return
		}
		memberID, ok := urlUUID(w, r, "memberID")
		if !ok {
			return
		}
		if _, ok := flowCluster(w, r, s, flowID, clusterID); !ok {
			return
		}

		member, err := s.GetClusterMember(r.Context(), memberID)
		if err == nil && member.ClusterID != clusterID {
			err = store.ErrNotFound
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "MEMBER_NOT_FOUND",
					"Cluster member not found", nil)
			} else {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to load cluster member", nil)
			}
			return
		}
		if err := s.DeleteClusterMember(r.Context(), memberID); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete cluster member", nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewDeleteItem returns the handler for DELETE /api/v1/flows/{flowID}/items/{itemID}.
// Any cluster members referencing the item are removed by cascade.
func NewDeleteItem(s ClusterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}
		itemID, ok := urlUUID(w, r, "itemID")
		if !ok {
			return
		}

		item, err := s.GetSourceItem(r.Context(), itemID)
		if err == nil && item.FlowID != flowID {
			err = store.ErrNotFound
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "ITEM_NOT_FOUND",
					"Item not found in this flow", nil)
			} else {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to load item", nil)
			}
			return
		}
		if err := s.DeleteSourceItem(r.Context(), itemID); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete item", nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

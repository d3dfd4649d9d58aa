package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/api/response"
	"github.com/painscope/painscope/internal/ingest"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

// Ingestor is the ingestion surface the ingest handler depends on.
type Ingestor interface {
	IngestPaste(ctx context.Context, flowID uuid.UUID, text string) (*models.FlowSource, []*models.SourceItem, error)
	IngestReddit(ctx context.Context, flowID uuid.UUID, params ingest.RedditParams) (*models.FlowSource, []*models.SourceItem, *ingest.RedditStats, error)
}

// NewIngest returns the handler for POST /api/v1/flows/{flowID}/ingest.
// Reddit ingestion is synchronous; clients should expect the request to take
// roughly a second per Reddit call made on their behalf.
func NewIngest(svc Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, ok := urlUUID(w, r, "flowID")
		if !ok {
			return
		}

		var req struct {
			Type            string `json:"type"`
			Text            string `json:"text"`
			Subreddit       string `json:"subreddit"`
			TimeRange       string `json:"timeRange"`
			Limit           int    `json:"limit"`
			IncludeComments *bool  `json:"includeComments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Type == "" {
			req.Type = "paste"
		}

		switch req.Type {
		case "paste":
			source, items, err := svc.IngestPaste(r.Context(), flowID, req.Text)
			if err != nil {
				writeIngestError(w, err)
				return
			}
			response.Created(w, map[string]any{"source": source, "items": items})

		case "reddit":
			includeComments := true
			if req.IncludeComments != nil {
				includeComments = *req.IncludeComments
			}
			source, items, stats, err := svc.IngestReddit(r.Context(), flowID, ingest.RedditParams{
				Subreddit:       req.Subreddit,
				TimeRange:       ingest.TimeRange(req.TimeRange),
				Limit:           req.Limit,
				IncludeComments: includeComments,
			})
			if err != nil {
				writeIngestError(w, err)
				return
			}
			if items == nil {
				items = []*models.SourceItem{}
			}
			response.Created(w, map[string]any{"source": source, "items": items, "stats": stats})

		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"type must be 'paste' or 'reddit'", nil)
		}
	}
}

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "FLOW_NOT_FOUND", "Flow not found", nil)
	case errors.Is(err, ingest.ErrEmptyPaste),
		errors.Is(err, ingest.ErrNoSubreddit),
		errors.Is(err, ingest.ErrBadTimeRange):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, ingest.ErrIngestRunning):
		response.Error(w, http.StatusConflict, "INGESTION_RUNNING",
			"Ingestion already running for this flow", nil)
	case errors.Is(err, ingest.ErrSubredditNotFound), errors.Is(err, ingest.ErrNoPosts):
		response.Error(w, http.StatusNotFound, "REDDIT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ingest.ErrSubredditForbidden):
		response.Error(w, http.StatusForbidden, "REDDIT_FORBIDDEN", err.Error(), nil)
	case errors.Is(err, ingest.ErrRedditRateLimited):
		response.Error(w, http.StatusTooManyRequests, "REDDIT_RATE_LIMITED",
			"Reddit API rate limit exceeded. Please wait a few minutes and try again.", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

const (
	// maxRedditFetchLimit bounds how many posts one ingestion may request.
	maxRedditFetchLimit     = 500
	defaultRedditFetchLimit = 100
)

var (
	ErrIngestRunning = errors.New("ingestion already running for this flow")
	ErrEmptyPaste    = errors.New("text is required for paste ingestion")
	ErrNoSubreddit   = errors.New("subreddit is required for reddit ingestion")
	ErrBadTimeRange  = errors.New("invalid time range")
	ErrNoPosts       = errors.New("no posts found for the selected time range")
)

// Service ingests pasted text and Reddit listings into a flow's items.
type Service struct {
	store  store.Store
	reddit RedditClient
}

// NewService creates an ingestion Service.
func NewService(st store.Store, reddit RedditClient) *Service {
	return &Service{store: st, reddit: reddit}
}

// IngestPaste splits pasted text on blank lines and writes each chunk as a
// SourceItem, recording one FlowSource for the action. All rows commit
// together or not at all.
func (s *Service) IngestPaste(ctx context.Context, flowID uuid.UUID, text string) (*models.FlowSource, []*models.SourceItem, error) {
	if _, err := s.store.GetFlow(ctx, flowID); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, ErrEmptyPaste
	}

	source := &models.FlowSource{
		ID:        uuid.New(),
		FlowID:    flowID,
		Type:      "paste",
		Params:    map[string]any{},
		CreatedAt: time.Now().UTC(),
	}
	chunks := SplitPaste(text)
	items := make([]*models.SourceItem, 0, len(chunks))

	err := s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateFlowSource(ctx, source); err != nil {
			return fmt.Errorf("creating flow source: %w", err)
		}
		for _, chunk := range chunks {
			item := &models.SourceItem{
				ID:        uuid.New(),
				FlowID:    flowID,
				SourceID:  &source.ID,
				Kind:      models.SourcePaste,
				Text:      chunk,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.CreateSourceItem(ctx, item); err != nil {
				return fmt.Errorf("creating item: %w", err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return source, items, nil
}

// RedditParams configures one subreddit ingestion.
type RedditParams struct {
	Subreddit       string
	TimeRange       TimeRange
	Limit           int
	IncludeComments bool
}

// RedditStats summarizes what an ingestion wrote.
type RedditStats struct {
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
	Total    int `json:"total"`
}

// IngestReddit fetches a subreddit listing (and optionally top comments per
// post) and writes the normalized items. It runs synchronously; the caller
// holds the connection while Reddit pacing plays out. Progress lands on the
// flow's ingest fields so other clients can poll it.
//
// Items already ingested for this flow (same reddit id) are skipped.
func (s *Service) IngestReddit(ctx context.Context, flowID uuid.UUID, params RedditParams) (*models.FlowSource, []*models.SourceItem, *RedditStats, error) {
	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		return nil, nil, nil, err
	}

	subreddit := strings.ToLower(strings.TrimSpace(params.Subreddit))
	subreddit = strings.TrimPrefix(subreddit, "r/")
	if subreddit == "" {
		return nil, nil, nil, ErrNoSubreddit
	}
	if params.TimeRange == "" {
		params.TimeRange = RangeWeek
	}
	if !params.TimeRange.Valid() {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrBadTimeRange, params.TimeRange)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRedditFetchLimit
	}
	if limit > maxRedditFetchLimit {
		limit = maxRedditFetchLimit
	}

	// Same read-then-write guard as analysis start; accepted under the
	// single-UI-per-flow assumption.
	if flow.IngestStatus == models.IngestRunning {
		return nil, nil, nil, ErrIngestRunning
	}

	start := time.Now().UTC()
	if err := s.store.UpdateFlowIngest(ctx, flowID, models.IngestRunning,
		store.WithIngestProgress(&models.IngestProgress{Step: "fetching_posts"}),
		store.WithoutIngestError()); err != nil {
		return nil, nil, nil, fmt.Errorf("marking ingestion running: %w", err)
	}

	posts, err := s.reddit.FetchPosts(ctx, subreddit, params.TimeRange, limit)
	if err != nil {
		s.finalize(ctx, flowID, models.IngestFailed, err.Error(), start)
		return nil, nil, nil, err
	}
	if len(posts) == 0 {
		err := fmt.Errorf("r/%s: %w", subreddit, ErrNoPosts)
		s.finalize(ctx, flowID, models.IngestFailed, err.Error(), start)
		return nil, nil, nil, err
	}

	s.progress(ctx, flowID, &models.IngestProgress{
		Step: "processing_posts", PostsFound: len(posts), TotalPosts: len(posts),
	})

	// The source row is created only after a successful fetch so a dead
	// subreddit leaves no orphan behind.
	source := &models.FlowSource{
		ID:     uuid.New(),
		FlowID: flowID,
		Type:   "reddit",
		Params: map[string]any{
			"subreddit":       subreddit,
			"timeRange":       string(params.TimeRange),
			"limit":           limit,
			"includeComments": params.IncludeComments,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateFlowSource(ctx, source); err != nil {
		s.finalize(ctx, flowID, models.IngestFailed, err.Error(), start)
		return nil, nil, nil, fmt.Errorf("creating flow source: %w", err)
	}

	postIDs := make([]string, len(posts))
	for i, p := range posts {
		postIDs[i] = p.ID
	}
	known, err := s.store.ExistingRedditIDs(ctx, flowID, postIDs)
	if err != nil {
		s.finalize(ctx, flowID, models.IngestFailed, err.Error(), start)
		return nil, nil, nil, fmt.Errorf("checking existing items: %w", err)
	}

	var items []*models.SourceItem
	postsWritten, commentsWritten := 0, 0

	for i, post := range posts {
		if !known[post.ID] {
			item, err := s.createItem(ctx, flowID, source.ID, NormalizePost(post))
			if err != nil {
				s.finalize(ctx, flowID, models.IngestFailed, err.Error(), start)
				return nil, nil, nil, err
			}
			items = append(items, item)
			postsWritten++
			known[post.ID] = true
		}

		s.progress(ctx, flowID, &models.IngestProgress{
			Step:              "processing_posts",
			PostsFound:        len(posts),
			PostsProcessed:    i + 1,
			CommentsProcessed: commentsWritten,
			TotalPosts:        len(posts),
		})

		if !params.IncludeComments || post.NumComments == 0 {
			continue
		}
		comments, err := s.reddit.FetchComments(ctx, post.ID, post.Subreddit, commentsPerPost)
		if err != nil {
			// Comment failures cost only that post's comments.
			slog.Warn("fetching comments failed", "post_id", post.ID, "error", err)
			continue
		}
		for _, comment := range comments {
			if known[comment.ID] {
				continue
			}
			item, err := s.createItem(ctx, flowID, source.ID, NormalizeComment(comment, post.Title))
			if err != nil {
				s.finalize(ctx, flowID, models.IngestFailed, err.Error(), start)
				return nil, nil, nil, err
			}
			items = append(items, item)
			commentsWritten++
			known[comment.ID] = true
		}
		s.progress(ctx, flowID, &models.IngestProgress{
			Step:              "processing_comments",
			PostsFound:        len(posts),
			PostsProcessed:    i + 1,
			CommentsProcessed: commentsWritten,
			TotalPosts:        len(posts),
		})
	}

	s.finalize(ctx, flowID, models.IngestSucceeded, "", start)
	stats := &RedditStats{Posts: postsWritten, Comments: commentsWritten, Total: len(items)}
	slog.Info("reddit ingestion finished", "flow_id", flowID, "subreddit", subreddit,
		"posts", stats.Posts, "comments", stats.Comments)
	return source, items, stats, nil
}

func (s *Service) createItem(ctx context.Context, flowID, sourceID uuid.UUID, n NormalizedItem) (*models.SourceItem, error) {
	item := &models.SourceItem{
		ID:            uuid.New(),
		FlowID:        flowID,
		SourceID:      &sourceID,
		Kind:          n.Kind,
		Title:         n.Title,
		Text:          n.Text,
		RedditID:      n.RedditID,
		AuthorHash:    n.AuthorHash,
		Score:         n.Score,
		NumComments:   n.NumComments,
		URL:           n.URL,
		ItemCreatedAt: n.ItemCreatedAt,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateSourceItem(ctx, item); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

func (s *Service) progress(ctx context.Context, flowID uuid.UUID, p *models.IngestProgress) {
	if err := s.store.UpdateFlowIngest(ctx, flowID, models.IngestRunning,
		store.WithIngestProgress(p)); err != nil {
		slog.Error("updating ingest progress failed", "flow_id", flowID, "error", err)
	}
}

func (s *Service) finalize(ctx context.Context, flowID uuid.UUID, status models.IngestStatus, errMsg string, start time.Time) {
	opts := []store.FlowIngestOption{
		store.WithIngestProgress(nil),
		store.WithIngestDuration(time.Since(start).Milliseconds()),
	}
	if errMsg != "" {
		opts = append(opts, store.WithIngestError(errMsg))
	} else {
		opts = append(opts, store.WithoutIngestError())
	}
	if err := s.store.UpdateFlowIngest(ctx, flowID, status, opts...); err != nil {
		slog.Error("finalizing ingestion failed", "flow_id", flowID, "status", status, "error", err)
	}
}

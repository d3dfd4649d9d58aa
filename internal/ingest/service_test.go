package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

// ingestStore embeds store.Store so only the methods the ingestion service
// actually touches need real bodies; anything else panics loudly.
type ingestStore struct {
	store.Store

	mu      sync.Mutex
	flows   map[uuid.UUID]*models.Flow
	sources []*models.FlowSource
	items   []*models.SourceItem
}

func newIngestStore() *ingestStore {
	return &ingestStore{flows: make(map[uuid.UUID]*models.Flow)}
}

func (f *ingestStore) addFlow(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.flows[id] = &models.Flow{ID: id, Name: "flow", IngestStatus: models.IngestIdle}
	return id
}

func (f *ingestStore) GetFlow(_ context.Context, id uuid.UUID) (*models.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.flows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *fl
	return &cp, nil
}

func (f *ingestStore) InTx(_ context.Context, fn func(store.Store) error) error {
	return fn(f)
}

func (f *ingestStore) CreateFlowSource(_ context.Context, src *models.FlowSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	return nil
}

func (f *ingestStore) CreateSourceItem(_ context.Context, item *models.SourceItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return nil
}

func (f *ingestStore) ExistingRedditIDs(_ context.Context, flowID uuid.UUID, _ []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	known := make(map[string]bool)
	for _, it := range f.items {
		if it.FlowID == flowID && it.RedditID != nil {
			known[*it.RedditID] = true
		}
	}
	return known, nil
}

func (f *ingestStore) UpdateFlowIngest(_ context.Context, flowID uuid.UUID, status models.IngestStatus, opts ...store.FlowIngestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.flows[flowID]
	if !ok {
		return store.ErrNotFound
	}
	fl.IngestStatus = status
	p := store.ApplyFlowIngestOptions(opts)
	if p.Progress != nil || p.ClearProgress {
		fl.IngestProgress = p.Progress
	}
	if p.ErrorMessage != nil {
		fl.IngestError = p.ErrorMessage
	}
	if p.ClearError {
		fl.IngestError = nil
	}
	if p.DurationMs != nil {
		fl.IngestDurationMs = p.DurationMs
	}
	return nil
}

// fakeReddit serves canned posts and comments without any HTTP.
type fakeReddit struct {
	posts       []Post
	postsErr    error
	comments    map[string][]Comment
	commentsErr error
}

func (f *fakeReddit) FetchPosts(context.Context, string, TimeRange, int) ([]Post, error) {
	return f.posts, f.postsErr
}

func (f *fakeReddit) FetchComments(_ context.Context, postID, _ string, _ int) ([]Comment, error) {
	return f.comments[postID], f.commentsErr
}

func TestIngestPaste(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	svc := NewService(st, &fakeReddit{})

	source, items, err := svc.IngestPaste(context.Background(), flowID, "first pain\n\nsecond pain\n\n\nthird")
	require.NoError(t, err)

	assert.Equal(t, "paste", source.Type)
	require.Len(t, items, 3)
	assert.Equal(t, "first pain", items[0].Text)
	assert.Equal(t, "third", items[2].Text)
	for _, it := range items {
		assert.Equal(t, models.SourcePaste, it.Kind)
		assert.Equal(t, flowID, it.FlowID)
		require.NotNil(t, it.SourceID)
		assert.Equal(t, source.ID, *it.SourceID)
	}
	assert.Len(t, st.items, 3)
}

func TestIngestPaste_Validation(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	svc := NewService(st, &fakeReddit{})

	_, _, err := svc.IngestPaste(context.Background(), uuid.New(), "hi")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = svc.IngestPaste(context.Background(), flowID, "   \n\n  ")
	assert.ErrorIs(t, err, ErrEmptyPaste)
	assert.Empty(t, st.items)
}

func redditPosts() []Post {
	return []Post{
		{ID: "p1", Title: "Exports time out", Text: "CSV export dies", Author: "alice",
			Score: 40, NumComments: 2, Permalink: "/r/saas/comments/p1/x/",
			CreatedUTC: 1700000000, Subreddit: "saas"},
		{ID: "p2", Title: "Billing confusion", Text: "", Author: "bob",
			Score: 12, NumComments: 0, Permalink: "/r/saas/comments/p2/y/",
			CreatedUTC: 1700000100, Subreddit: "saas"},
	}
}

func TestIngestReddit(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	reddit := &fakeReddit{
		posts: redditPosts(),
		comments: map[string][]Comment{
			"p1": {
				{ID: "c1", Text: "same here", Author: "carol", Score: 5, ParentID: "p1", CreatedUTC: 1700000200},
			},
		},
	}
	svc := NewService(st, reddit)

	source, items, stats, err := svc.IngestReddit(context.Background(), flowID, RedditParams{
		Subreddit: "r/SaaS", IncludeComments: true,
	})
	require.NoError(t, err)

	// "r/SaaS" normalizes to "saas" and the week default is recorded.
	assert.Equal(t, "reddit", source.Type)
	assert.Equal(t, "saas", source.Params["subreddit"])
	assert.Equal(t, string(RangeWeek), source.Params["timeRange"])

	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Posts)
	assert.Equal(t, 1, stats.Comments)
	assert.Equal(t, 3, stats.Total)
	require.Len(t, items, 3)

	kinds := map[models.SourceKind]int{}
	for _, it := range items {
		kinds[it.Kind]++
	}
	assert.Equal(t, 2, kinds[models.SourceRedditPost])
	assert.Equal(t, 1, kinds[models.SourceRedditComment])

	flow, err := st.GetFlow(context.Background(), flowID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestSucceeded, flow.IngestStatus)
	assert.Nil(t, flow.IngestProgress)
	assert.Nil(t, flow.IngestError)
	require.NotNil(t, flow.IngestDurationMs)
}

func TestIngestReddit_SkipsKnownIDs(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	existing := "p1"
	st.items = append(st.items, &models.SourceItem{
		ID: uuid.New(), FlowID: flowID, Kind: models.SourceRedditPost,
		RedditID: &existing, CreatedAt: time.Now().UTC(),
	})
	svc := NewService(st, &fakeReddit{posts: redditPosts()})

	_, items, stats, err := svc.IngestReddit(context.Background(), flowID, RedditParams{Subreddit: "saas"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].RedditID)
	assert.Equal(t, "p2", *items[0].RedditID)
	assert.Equal(t, 1, stats.Posts)
}

func TestIngestReddit_FetchFailureMarksFlowFailed(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	svc := NewService(st, &fakeReddit{postsErr: ErrSubredditNotFound})

	_, _, _, err := svc.IngestReddit(context.Background(), flowID, RedditParams{Subreddit: "ghost"})
	assert.ErrorIs(t, err, ErrSubredditNotFound)

	flow, gerr := st.GetFlow(context.Background(), flowID)
	require.NoError(t, gerr)
	assert.Equal(t, models.IngestFailed, flow.IngestStatus)
	require.NotNil(t, flow.IngestError)
	// No source row is written for a failed fetch.
	assert.Empty(t, st.sources)
}

func TestIngestReddit_EmptyListing(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	svc := NewService(st, &fakeReddit{})

	_, _, _, err := svc.IngestReddit(context.Background(), flowID, RedditParams{Subreddit: "quiet"})
	assert.ErrorIs(t, err, ErrNoPosts)

	flow, gerr := st.GetFlow(context.Background(), flowID)
	require.NoError(t, gerr)
	assert.Equal(t, models.IngestFailed, flow.IngestStatus)
}

func TestIngestReddit_Preconditions(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	st.flows[flowID].IngestStatus = models.IngestRunning
	svc := NewService(st, &fakeReddit{posts: redditPosts()})

	_, _, _, err := svc.IngestReddit(context.Background(), flowID, RedditParams{Subreddit: "saas"})
	assert.ErrorIs(t, err, ErrIngestRunning)

	_, _, _, err = svc.IngestReddit(context.Background(), flowID, RedditParams{Subreddit: "  "})
	assert.ErrorIs(t, err, ErrNoSubreddit)

	_, _, _, err = svc.IngestReddit(context.Background(), flowID, RedditParams{Subreddit: "saas", TimeRange: "decade"})
	assert.ErrorIs(t, err, ErrBadTimeRange)
}

func TestIngestReddit_CommentFailureIsSoft(t *testing.T) {
	st := newIngestStore()
	flowID := st.addFlow(t)
	svc := NewService(st, &fakeReddit{posts: redditPosts(), commentsErr: errors.New("boom")})

	_, items, stats, err := svc.IngestReddit(context.Background(), flowID, RedditParams{
		Subreddit: "saas", IncludeComments: true,
	})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 0, stats.Comments)
}

// Package ingest turns external text sources (pasted text, Reddit's public
// JSON API) into SourceItems on a flow.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"
)

// Unauthenticated Reddit allows 60 requests/min; pacing at 1033ms keeps us
// around 58/min with margin.
const redditRateLimitDelay = 1033 * time.Millisecond

// redditMaxRetries bounds 429 retries per request.
const redditMaxRetries = 3

// redditPageLimit is the most items Reddit returns per listing request.
const redditPageLimit = 100

// commentsPerPost caps how many top comments are ingested per post.
const commentsPerPost = 10

var (
	ErrSubredditNotFound  = errors.New("subreddit not found or private")
	ErrSubredditForbidden = errors.New("subreddit access forbidden")
	ErrRedditRateLimited  = errors.New("reddit rate limit exceeded")
)

// TimeRange selects the window for top-post listings.
type TimeRange string

const (
	RangeHour  TimeRange = "hour"
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
	RangeAll   TimeRange = "all"
)

// Valid reports whether t is a known time range.
func (t TimeRange) Valid() bool {
	switch t {
	case RangeHour, RangeDay, RangeWeek, RangeMonth, RangeYear, RangeAll:
		return true
	}
	return false
}

// Post is one Reddit submission from a subreddit listing.
type Post struct {
	ID          string
	Title       string
	Text        string
	Author      string
	Score       int
	NumComments int
	Permalink   string
	CreatedUTC  float64
	Subreddit   string
}

// Comment is one Reddit comment under a post.
type Comment struct {
	ID         string
	Text       string
	Author     string
	Score      int
	Permalink  string
	CreatedUTC float64
	ParentID   string
}

// RedditClient fetches posts and comments from Reddit.
type RedditClient interface {
	FetchPosts(ctx context.Context, subreddit string, timeRange TimeRange, limit int) ([]Post, error)
	FetchComments(ctx context.Context, postID, subreddit string, limit int) ([]Comment, error)
}

// HTTPRedditClient talks to Reddit's public JSON API, pacing every request
// and retrying on 429.
type HTTPRedditClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client

	paceDelay   time.Duration
	backoffUnit time.Duration
}

// NewHTTPRedditClient creates a Reddit client against baseURL.
func NewHTTPRedditClient(baseURL, userAgent string) *HTTPRedditClient {
	return &HTTPRedditClient{
		baseURL:     baseURL,
		userAgent:   userAgent,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		paceDelay:   redditRateLimitDelay,
		backoffUnit: time.Second,
	}
}

// FetchPosts returns up to limit posts for the subreddit. RangeAll reads the
// hot listing; every other range reads top with the matching time filter.
func (c *HTTPRedditClient) FetchPosts(ctx context.Context, subreddit string, timeRange TimeRange, limit int) ([]Post, error) {
	if limit > redditPageLimit {
		limit = redditPageLimit
	}

	var url string
	if timeRange == RangeAll {
		url = fmt.Sprintf("%s/r/%s/hot.json?limit=%d", c.baseURL, subreddit, limit)
	} else {
		url = fmt.Sprintf("%s/r/%s/top.json?t=%s&limit=%d", c.baseURL, subreddit, timeRange, limit)
	}

	body, err := c.get(ctx, url)
	if err != nil {
		if errors.Is(err, ErrSubredditNotFound) || errors.Is(err, ErrSubredditForbidden) || errors.Is(err, ErrRedditRateLimited) {
			return nil, fmt.Errorf("r/%s: %w", subreddit, err)
		}
		return nil, fmt.Errorf("fetching posts from r/%s: %w", subreddit, err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("parsing r/%s listing: %w", subreddit, err)
	}
	if listing.Data == nil {
		return nil, fmt.Errorf("parsing r/%s listing: missing data", subreddit)
	}

	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		d := child.Data
		author := d.Author
		if author == "" {
			author = "[deleted]"
		}
		sub := d.Subreddit
		if sub == "" {
			sub = subreddit
		}
		posts = append(posts, Post{
			ID:          d.ID,
			Title:       d.Title,
			Text:        d.Selftext,
			Author:      author,
			Score:       d.Score,
			NumComments: d.NumComments,
			Permalink:   d.Permalink,
			CreatedUTC:  d.CreatedUTC,
			Subreddit:   sub,
		})
	}
	return posts, nil
}

// FetchComments returns up to limit comments for a post, highest score first.
// Failures here are soft; callers are expected to continue with other posts.
func (c *HTTPRedditClient) FetchComments(ctx context.Context, postID, subreddit string, limit int) ([]Comment, error) {
	url := fmt.Sprintf("%s/r/%s/comments/%s.json?limit=%d", c.baseURL, subreddit, postID, limit)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching comments for %s: %w", postID, err)
	}

	// Reddit returns a two-element array: the post, then the comment tree.
	var pages []redditListing
	if err := json.Unmarshal(body, &pages); err != nil {
		return nil, fmt.Errorf("parsing comments for %s: %w", postID, err)
	}
	if len(pages) < 2 || pages[1].Data == nil {
		return nil, nil
	}

	var comments []Comment
	collectComments(pages[1].Data.Children, postID, limit, &comments)

	sort.SliceStable(comments, func(i, j int) bool { return comments[i].Score > comments[j].Score })
	if len(comments) > limit {
		comments = comments[:limit]
	}
	// All ingested comments are attributed to the post regardless of reply depth.
	for i := range comments {
		comments[i].ParentID = postID
	}
	return comments, nil
}

// collectComments walks the reply tree, skipping "more" stubs and deleted
// bodies, gathering at most 2*limit candidates before the score sort.
func collectComments(children []redditChild, parentID string, limit int, out *[]Comment) {
	for _, child := range children {
		if child.Kind != "t1" {
			continue
		}
		d := child.Data
		if d.Body == "" || d.Body == "[deleted]" || d.Body == "[removed]" {
			continue
		}
		author := d.Author
		if author == "" {
			author = "[deleted]"
		}
		*out = append(*out, Comment{
			ID:         d.ID,
			Text:       d.Body,
			Author:     author,
			Score:      d.Score,
			Permalink:  d.Permalink,
			CreatedUTC: d.CreatedUTC,
			ParentID:   parentID,
		})

		if len(*out) < limit*2 && len(d.Replies) > 0 {
			var replies redditListing
			if err := json.Unmarshal(d.Replies, &replies); err == nil && replies.Data != nil {
				collectComments(replies.Data.Children, d.ID, limit, out)
			}
		}
	}
}

// get performs one paced request, retrying on 429 per Retry-After or
// exponential backoff (2s, 4s, 8s).
func (c *HTTPRedditClient) get(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := sleepCtx(ctx, c.paceDelay); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("reddit request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if attempt >= redditMaxRetries {
				return nil, ErrRedditRateLimited
			}
			wait := backoffWait(resp.Header.Get("Retry-After"), attempt, c.backoffUnit)
			slog.Warn("reddit rate limited, backing off", "wait", wait, "attempt", attempt+1, "max", redditMaxRetries)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("reading reddit response: %w", readErr)
			}
			return body, nil
		case http.StatusNotFound:
			return nil, ErrSubredditNotFound
		case http.StatusForbidden:
			return nil, ErrSubredditForbidden
		default:
			return nil, fmt.Errorf("reddit returned status %d", resp.StatusCode)
		}
	}
}

// backoffWait honors Retry-After when present, otherwise backs off
// exponentially (2, 4, 8 units).
func backoffWait(retryAfter string, attempt int, unit time.Duration) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * unit
		}
	}
	return time.Duration(1<<(attempt+1)) * unit
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type redditListing struct {
	Data *redditListingData `json:"data"`
}

type redditListingData struct {
	Children []redditChild `json:"children"`
}

type redditChild struct {
	Kind string          `json:"kind"`
	Data redditChildData `json:"data"`
}

// redditChildData covers both post (t3) and comment (t1) payloads. Replies is
// raw because Reddit encodes an empty reply tree as "" instead of an object.
type redditChildData struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Selftext    string          `json:"selftext"`
	Body        string          `json:"body"`
	Author      string          `json:"author"`
	Score       int             `json:"score"`
	NumComments int             `json:"num_comments"`
	Permalink   string          `json:"permalink"`
	CreatedUTC  float64         `json:"created_utc"`
	Subreddit   string          `json:"subreddit"`
	Replies     json.RawMessage `json:"replies,omitempty"`
}

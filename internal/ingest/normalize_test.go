package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/painscope/painscope/pkg/models"
)

func TestHashAuthor(t *testing.T) {
	a := HashAuthor("some_redditor")
	b := HashAuthor("some_redditor")
	c := HashAuthor("another_redditor")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // sha256 hex
	assert.NotContains(t, a, "some_redditor")
}

func TestNormalizePost(t *testing.T) {
	got := NormalizePost(Post{
		ID:          "abc123",
		Title:       "Exports are killing me",
		Text:        "every export takes an hour",
		Author:      "frustrated_pm",
		Score:       42,
		NumComments: 7,
		Permalink:   "/r/saas/comments/abc123/exports/",
		CreatedUTC:  1700000000,
	})

	assert.Equal(t, models.SourceRedditPost, got.Kind)
	assert.Equal(t, "Exports are killing me", *got.Title)
	assert.Equal(t, "every export takes an hour", got.Text)
	assert.Equal(t, "abc123", *got.RedditID)
	assert.Equal(t, HashAuthor("frustrated_pm"), *got.AuthorHash)
	assert.Equal(t, 42, *got.Score)
	assert.Equal(t, 7, *got.NumComments)
	assert.Equal(t, "https://reddit.com/r/saas/comments/abc123/exports/", *got.URL)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *got.ItemCreatedAt)
}

func TestNormalizePost_LinkPostFallsBackToTitle(t *testing.T) {
	got := NormalizePost(Post{ID: "x", Title: "Look at this tool", Text: ""})
	assert.Equal(t, "Look at this tool", got.Text)
}

func TestNormalizeComment(t *testing.T) {
	got := NormalizeComment(Comment{
		ID:         "c99",
		Text:       "same here, exports are broken",
		Author:     "another_user",
		Score:      5,
		Permalink:  "/r/saas/comments/abc123/exports/c99/",
		CreatedUTC: 1700000100,
	}, "Exports are killing me")

	assert.Equal(t, models.SourceRedditComment, got.Kind)
	assert.Equal(t, "Comment on: Exports are killing me", *got.Title)
	assert.Equal(t, "same here, exports are broken", got.Text)
	assert.Nil(t, got.NumComments)
	assert.Equal(t, HashAuthor("another_user"), *got.AuthorHash)
}

func TestNormalizeComment_LongPostTitleIsTruncated(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := NormalizeComment(Comment{ID: "c1", Text: "t"}, long)

	require.NotNil(t, got.Title)
	assert.Equal(t, "Comment on: "+strings.Repeat("a", commentTitlePrefixLen)+"...", *got.Title)
}

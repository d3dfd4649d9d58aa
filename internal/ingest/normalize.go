package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/painscope/painscope/pkg/models"
)

// commentTitlePrefixLen bounds how much of the post title a comment's
// synthesized title carries.
const commentTitlePrefixLen = 50

// NormalizedItem is the source-agnostic shape written as a SourceItem.
type NormalizedItem struct {
	Kind          models.SourceKind
	Title         *string
	Text          string
	RedditID      *string
	AuthorHash    *string
	Score         *int
	NumComments   *int
	URL           *string
	ItemCreatedAt *time.Time
}

// HashAuthor returns the SHA-256 hex digest of a Reddit username. Usernames
// are never stored in the clear.
func HashAuthor(author string) string {
	sum := sha256.Sum256([]byte(author))
	return hex.EncodeToString(sum[:])
}

// NormalizePost converts a Reddit post. Link posts have no selftext; the
// title stands in as the text so the item still carries content.
func NormalizePost(p Post) NormalizedItem {
	text := p.Text
	if text == "" {
		text = p.Title
	}
	title := p.Title
	hash := HashAuthor(p.Author)
	url := "https://reddit.com" + p.Permalink
	created := time.Unix(int64(p.CreatedUTC), 0).UTC()
	return NormalizedItem{
		Kind:          models.SourceRedditPost,
		Title:         &title,
		Text:          text,
		RedditID:      &p.ID,
		AuthorHash:    &hash,
		Score:         &p.Score,
		NumComments:   &p.NumComments,
		URL:           &url,
		ItemCreatedAt: &created,
	}
}

// NormalizeComment converts a Reddit comment, titling it after the post it
// belongs to.
func NormalizeComment(c Comment, postTitle string) NormalizedItem {
	prefix := postTitle
	ellipsis := ""
	if r := []rune(postTitle); len(r) > commentTitlePrefixLen {
		prefix = string(r[:commentTitlePrefixLen])
		ellipsis = "..."
	}
	title := fmt.Sprintf("Comment on: %s%s", prefix, ellipsis)
	hash := HashAuthor(c.Author)
	url := "https://reddit.com" + c.Permalink
	created := time.Unix(int64(c.CreatedUTC), 0).UTC()
	return NormalizedItem{
		Kind:          models.SourceRedditComment,
		Title:         &title,
		Text:          c.Text,
		RedditID:      &c.ID,
		AuthorHash:    &hash,
		Score:         &c.Score,
		URL:           &url,
		ItemCreatedAt: &created,
	}
}

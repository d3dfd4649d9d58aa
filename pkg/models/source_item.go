package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies where a SourceItem came from.
type SourceKind string

const (
	SourcePaste         SourceKind = "paste"
	SourceRedditPost    SourceKind = "reddit_post"
	SourceRedditComment SourceKind = "reddit_comment"
)

// FlowSource records one ingestion action against a flow (a paste or a
// subreddit fetch) so items can be traced back to how they arrived.
type FlowSource struct {
	ID        uuid.UUID      `db:"id"         json:"id"`
	FlowID    uuid.UUID      `db:"flow_id"    json:"flow_id"`
	Type      string         `db:"type"       json:"type"`
	Params    map[string]any `db:"params"     json:"params"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// SourceItem is one unit of ingested text belonging to a flow. Immutable once
// created except by deletion; CreatedAt drives "new data since last analysis".
type SourceItem struct {
	ID            uuid.UUID  `db:"id"              json:"id"`
	FlowID        uuid.UUID  `db:"flow_id"         json:"flow_id"`
	SourceID      *uuid.UUID `db:"source_id"       json:"source_id,omitempty"`
	Kind          SourceKind `db:"kind"            json:"kind"`
	Title         *string    `db:"title"           json:"title,omitempty"`
	Text          string     `db:"text"            json:"text"`
	RedditID      *string    `db:"reddit_id"       json:"reddit_id,omitempty"`
	AuthorHash    *string    `db:"author_hash"     json:"author_hash,omitempty"`
	Score         *int       `db:"score"           json:"score,omitempty"`
	NumComments   *int       `db:"num_comments"    json:"num_comments,omitempty"`
	URL           *string    `db:"url"             json:"url,omitempty"`
	ItemCreatedAt *time.Time `db:"item_created_at" json:"item_created_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
}

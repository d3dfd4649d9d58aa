package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxClusterLabelLen bounds a cluster label in runes.
	MaxClusterLabelLen = 180
	// MaxClusterSummaryLen bounds a cluster summary in runes.
	MaxClusterSummaryLen = 2000
	// MaxClusterTags bounds the deduplicated tag set on a cluster.
	MaxClusterTags = 10
)

// ClusterScores holds the five [0,1] signal scores for a cluster. Nil fields
// mean the model did not estimate that signal.
type ClusterScores struct {
	Severity    *float64 `json:"severity,omitempty"`
	Frequency   *float64 `json:"frequency,omitempty"`
	SpendIntent *float64 `json:"spendIntent,omitempty"`
	Recency     *float64 `json:"recency,omitempty"`
	Total       *float64 `json:"total,omitempty"`
}

// Cluster is a discovered pain-point group belonging to a flow.
type Cluster struct {
	ID               uuid.UUID `db:"id"                 json:"id"`
	FlowID           uuid.UUID `db:"flow_id"            json:"flow_id"`
	Label            string    `db:"label"              json:"label"`
	Summary          *string   `db:"summary"            json:"summary,omitempty"`
	Tags             []string  `db:"tags"               json:"tags"`
	SeverityScore    *float64  `db:"severity_score"     json:"severity_score,omitempty"`
	FrequencyScore   *float64  `db:"frequency_score"    json:"frequency_score,omitempty"`
	SpendIntentScore *float64  `db:"spend_intent_score" json:"spend_intent_score,omitempty"`
	RecencyScore     *float64  `db:"recency_score"      json:"recency_score,omitempty"`
	TotalScore       *float64  `db:"total_score"        json:"total_score,omitempty"`
	CreatedAt        time.Time `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"         json:"updated_at"`

	Idea    *Idea           `db:"-" json:"idea,omitempty"`
	Members []ClusterMember `db:"-" json:"members,omitempty"`
}

// Idea is the single narrative record attached to a cluster (1:1).
type Idea struct {
	ID         uuid.UUID `db:"id"         json:"id"`
	ClusterID  uuid.UUID `db:"cluster_id" json:"cluster_id"`
	Pain       string    `db:"pain"       json:"pain"`
	Workaround *string   `db:"workaround" json:"workaround,omitempty"`
	Solution   string    `db:"solution"   json:"solution"`
	Confidence *float64  `db:"confidence" json:"confidence,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ClusterMember links a cluster to a source item evidencing it. Similarity is
// reserved for future relevance scoring and is currently always null.
type ClusterMember struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	ClusterID    uuid.UUID `db:"cluster_id"     json:"cluster_id"`
	SourceItemID uuid.UUID `db:"source_item_id" json:"source_item_id"`
	Similarity   *float64  `db:"similarity"     json:"similarity,omitempty"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
}

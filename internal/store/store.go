package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/painscope/painscope/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// InTx runs fn against a transaction-scoped Store; everything fn writes
// commits or rolls back atomically.
type Store interface {
	Ping(ctx context.Context) error
	InTx(ctx context.Context, fn func(Store) error) error

	CreateFlow(ctx context.Context, flow *models.Flow) error
	GetFlow(ctx context.Context, id uuid.UUID) (*models.Flow, error)
	ListFlows(ctx context.Context) ([]*models.Flow, error)
	DeleteFlow(ctx context.Context, id uuid.UUID) error
	UpdateFlowAnalysis(ctx context.Context, id uuid.UUID, status models.AnalysisStatus, opts ...FlowAnalysisOption) error
	UpdateFlowAnalysisProgress(ctx context.Context, id uuid.UUID, progress *models.AnalysisProgress) error
	UpdateFlowIngest(ctx context.Context, id uuid.UUID, status models.IngestStatus, opts ...FlowIngestOption) error

	CreateFlowSource(ctx context.Context, src *models.FlowSource) error
	CreateSourceItem(ctx context.Context, item *models.SourceItem) error
	ListSourceItems(ctx context.Context, flowID uuid.UUID) ([]*models.SourceItem, error)
	CountSourceItems(ctx context.Context, flowID uuid.UUID) (int, error)
	LatestSourceItemAt(ctx context.Context, flowID uuid.UUID) (*time.Time, error)
	GetSourceItem(ctx context.Context, id uuid.UUID) (*models.SourceItem, error)
	DeleteSourceItem(ctx context.Context, id uuid.UUID) error
	ExistingRedditIDs(ctx context.Context, flowID uuid.UUID, redditIDs []string) (map[string]bool, error)

	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	UpdateAnalysisRun(ctx context.Context, id uuid.UUID, opts ...RunUpdateOption) error
	ListAnalysisRuns(ctx context.Context, flowID uuid.UUID, limit int) ([]*models.AnalysisRun, error)

	CreateCluster(ctx context.Context, cluster *models.Cluster) error
	GetCluster(ctx context.Context, id uuid.UUID) (*models.Cluster, error)
	ListClusters(ctx context.Context, flowID uuid.UUID) ([]*models.Cluster, error)
	ListClustersDetailed(ctx context.Context, flowID uuid.UUID) ([]*models.Cluster, error)
	UpdateClusterText(ctx context.Context, id uuid.UUID, label, summary *string) error
	UpdateClusterScores(ctx context.Context, id uuid.UUID, scores models.ClusterScores) error
	ApplyClusterMerge(ctx context.Context, targetID uuid.UUID, tags []string, scores models.ClusterScores) error
	DeleteCluster(ctx context.Context, id uuid.UUID) error
	DeleteFlowClusters(ctx context.Context, flowID uuid.UUID) error

	CreateIdea(ctx context.Context, idea *models.Idea) error

	CreateClusterMember(ctx context.Context, member *models.ClusterMember) error
	ListClusterMembers(ctx context.Context, clusterID uuid.UUID) ([]*models.ClusterMember, error)
	HasClusterMember(ctx context.Context, clusterID, sourceItemID uuid.UUID) (bool, error)
	GetClusterMember(ctx context.Context, id uuid.UUID) (*models.ClusterMember, error)
	ReassignClusterMember(ctx context.Context, memberID, newClusterID uuid.UUID) error
	DeleteClusterMember(ctx context.Context, id uuid.UUID) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// FlowAnalysisParams is the collected result of FlowAnalysisOptions.
type FlowAnalysisParams struct {
	Progress       *models.AnalysisProgress
	ClearProgress  bool
	ErrorMessage   *string
	ClearError     bool
	DurationMs     *int64
	LastAnalyzedAt *time.Time
}

// FlowAnalysisOption customizes an analysis-status update on a flow.
type FlowAnalysisOption func(*FlowAnalysisParams)

func WithAnalysisProgress(p *models.AnalysisProgress) FlowAnalysisOption {
	return func(u *FlowAnalysisParams) {
		u.Progress = p
		u.ClearProgress = p == nil
	}
}

func WithAnalysisError(msg string) FlowAnalysisOption {
	return func(u *FlowAnalysisParams) { u.ErrorMessage = &msg }
}

// WithoutAnalysisError clears a previous run's error message.
func WithoutAnalysisError() FlowAnalysisOption {
	return func(u *FlowAnalysisParams) { u.ClearError = true }
}

func WithAnalysisDuration(ms int64) FlowAnalysisOption {
	return func(u *FlowAnalysisParams) { u.DurationMs = &ms }
}

func WithLastAnalyzedAt(t time.Time) FlowAnalysisOption {
	return func(u *FlowAnalysisParams) { u.LastAnalyzedAt = &t }
}

// FlowIngestParams is the collected result of FlowIngestOptions.
type FlowIngestParams struct {
	Progress      *models.IngestProgress
	ClearProgress bool
	ErrorMessage  *string
	ClearError    bool
	DurationMs    *int64
}

// FlowIngestOption customizes an ingestion-status update on a flow.
type FlowIngestOption func(*FlowIngestParams)

func WithIngestProgress(p *models.IngestProgress) FlowIngestOption {
	return func(u *FlowIngestParams) {
		u.Progress = p
		u.ClearProgress = p == nil
	}
}

func WithIngestError(msg string) FlowIngestOption {
	return func(u *FlowIngestParams) { u.ErrorMessage = &msg }
}

func WithoutIngestError() FlowIngestOption {
	return func(u *FlowIngestParams) { u.ClearError = true }
}

func WithIngestDuration(ms int64) FlowIngestOption {
	return func(u *FlowIngestParams) { u.DurationMs = &ms }
}

// RunUpdateParams is the collected result of RunUpdateOptions.
type RunUpdateParams struct {
	Status           *models.AnalysisStatus
	ItemsAnalyzed    *int
	BatchesProcessed *int
	CompletedAt      *time.Time
	DurationMs       *int64
	ErrorMessage     *string
}

// RunUpdateOption customizes an update to an analysis run record.
type RunUpdateOption func(*RunUpdateParams)

func WithRunStatus(s models.AnalysisStatus) RunUpdateOption {
	return func(u *RunUpdateParams) { u.Status = &s }
}

func WithRunCounts(itemsAnalyzed, batchesProcessed int) RunUpdateOption {
	return func(u *RunUpdateParams) {
		u.ItemsAnalyzed = &itemsAnalyzed
		u.BatchesProcessed = &batchesProcessed
	}
}

func WithRunCompleted(at time.Time, durationMs int64) RunUpdateOption {
	return func(u *RunUpdateParams) {
		u.CompletedAt = &at
		u.DurationMs = &durationMs
	}
}

func WithRunError(msg string) RunUpdateOption {
	return func(u *RunUpdateParams) { u.ErrorMessage = &msg }
}

// ApplyFlowAnalysisOptions folds opts into a params struct.
func ApplyFlowAnalysisOptions(opts []FlowAnalysisOption) *FlowAnalysisParams {
	params := &FlowAnalysisParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

// ApplyFlowIngestOptions folds opts into a params struct.
func ApplyFlowIngestOptions(opts []FlowIngestOption) *FlowIngestParams {
	params := &FlowIngestParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

// ApplyRunUpdateOptions folds opts into a params struct.
func ApplyRunUpdateOptions(opts []RunUpdateOption) *RunUpdateParams {
	params := &RunUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

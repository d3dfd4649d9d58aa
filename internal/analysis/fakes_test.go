package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

// fakeStore is an in-memory store.Store for orchestrator and reconciliation
// tests. InTx runs the callback against the same state; transactional
// atomicity is the real store's concern, covered by its integration tests.
type fakeStore struct {
	mu sync.Mutex

	flows    map[uuid.UUID]*models.Flow
	items    []*models.SourceItem
	runs     map[uuid.UUID]*models.AnalysisRun
	clusters []*models.Cluster
	ideas    map[uuid.UUID]*models.Idea
	members  []*models.ClusterMember

	updateFlowErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		flows: make(map[uuid.UUID]*models.Flow),
		runs:  make(map[uuid.UUID]*models.AnalysisRun),
		ideas: make(map[uuid.UUID]*models.Idea),
	}
}

func (f *fakeStore) addFlow(status models.AnalysisStatus) *models.Flow {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow := &models.Flow{
		ID:             uuid.New(),
		Name:           "test flow",
		AnalysisStatus: status,
		IngestStatus:   models.IngestIdle,
		CreatedAt:      time.Now().UTC(),
	}
	f.flows[flow.ID] = flow
	return flow
}

func (f *fakeStore) addItems(flowID uuid.UUID, n int) []*models.SourceItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.SourceItem, 0, n)
	for i := 0; i < n; i++ {
		item := &models.SourceItem{
			ID:        uuid.New(),
			FlowID:    flowID,
			Kind:      models.SourcePaste,
			Text:      "some complaint",
			CreatedAt: time.Now().UTC(),
		}
		f.items = append(f.items, item)
		out = append(out, item)
	}
	return out
}

func (f *fakeStore) flowSnapshot(id uuid.UUID) models.Flow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.flows[id]
}

func (f *fakeStore) runSnapshot(id uuid.UUID) models.AnalysisRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.runs[id]
}

func (f *fakeStore) clusterByLabel(label string) *models.Cluster {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clusters {
		if c.Label == label {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (f *fakeStore) membersOf(clusterID uuid.UUID) []*models.ClusterMember {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ClusterMember
	for _, m := range f.members {
		if m.ClusterID == clusterID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(f)
}

func (f *fakeStore) CreateFlow(ctx context.Context, flow *models.Flow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows[flow.ID] = flow
	return nil
}

func (f *fakeStore) GetFlow(ctx context.Context, id uuid.UUID) (*models.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow, ok := f.flows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *flow
	return &cp, nil
}

func (f *fakeStore) ListFlows(ctx context.Context) ([]*models.Flow, error) { return nil, nil }

func (f *fakeStore) DeleteFlow(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.flows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.flows, id)
	return nil
}

func (f *fakeStore) UpdateFlowAnalysis(ctx context.Context, id uuid.UUID, status models.AnalysisStatus, opts ...store.FlowAnalysisOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateFlowErr != nil {
		return f.updateFlowErr
	}
	flow, ok := f.flows[id]
	if !ok {
		return store.ErrNotFound
	}
	params := store.ApplyFlowAnalysisOptions(opts)
	flow.AnalysisStatus = status
	if params.Progress != nil || params.ClearProgress {
		flow.AnalysisProgress = params.Progress
	}
	if params.ErrorMessage != nil {
		flow.AnalysisError = params.ErrorMessage
	}
	if params.ClearError {
		flow.AnalysisError = nil
	}
	if params.DurationMs != nil {
		flow.AnalysisDurationMs = params.DurationMs
	}
	if params.LastAnalyzedAt != nil {
		flow.LastAnalyzedAt = params.LastAnalyzedAt
	}
	return nil
}

func (f *fakeStore) UpdateFlowAnalysisProgress(ctx context.Context, id uuid.UUID, progress *models.AnalysisProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow, ok := f.flows[id]
	if !ok {
		return store.ErrNotFound
	}
	flow.AnalysisProgress = progress
	return nil
}

func (f *fakeStore) UpdateFlowIngest(ctx context.Context, id uuid.UUID, status models.IngestStatus, opts ...store.FlowIngestOption) error {
	return nil
}

func (f *fakeStore) CreateFlowSource(ctx context.Context, src *models.FlowSource) error { return nil }

func (f *fakeStore) CreateSourceItem(ctx context.Context, item *models.SourceItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return nil
}

func (f *fakeStore) ListSourceItems(ctx context.Context, flowID uuid.UUID) ([]*models.SourceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SourceItem
	for _, it := range f.items {
		if it.FlowID == flowID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeStore) CountSourceItems(ctx context.Context, flowID uuid.UUID) (int, error) {
	items, _ := f.ListSourceItems(ctx, flowID)
	return len(items), nil
}

func (f *fakeStore) LatestSourceItemAt(ctx context.Context, flowID uuid.UUID) (*time.Time, error) {
	items, _ := f.ListSourceItems(ctx, flowID)
	var latest *time.Time
	for _, it := range items {
		t := it.CreatedAt
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest, nil
}

func (f *fakeStore) GetSourceItem(ctx context.Context, id uuid.UUID) (*models.SourceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) DeleteSourceItem(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ExistingRedditIDs(ctx context.Context, flowID uuid.UUID, redditIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (f *fakeStore) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateAnalysisRun(ctx context.Context, id uuid.UUID, opts ...store.RunUpdateOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	params := store.ApplyRunUpdateOptions(opts)
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.ItemsAnalyzed != nil {
		run.ItemsAnalyzed = params.ItemsAnalyzed
	}
	if params.BatchesProcessed != nil {
		run.BatchesProcessed = params.BatchesProcessed
	}
	if params.CompletedAt != nil {
		run.CompletedAt = params.CompletedAt
	}
	if params.DurationMs != nil {
		run.DurationMs = params.DurationMs
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	return nil
}

func (f *fakeStore) ListAnalysisRuns(ctx context.Context, flowID uuid.UUID, limit int) ([]*models.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AnalysisRun
	for _, r := range f.runs {
		if r.FlowID == flowID {
			cp := *r
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CreateCluster(ctx context.Context, cluster *models.Cluster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *cluster
	f.clusters = append(f.clusters, &cp)
	return nil
}

func (f *fakeStore) GetCluster(ctx context.Context, id uuid.UUID) (*models.Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clusters {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListClusters(ctx context.Context, flowID uuid.UUID) ([]*models.Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Cluster
	for _, c := range f.clusters {
		if c.FlowID == flowID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListClustersDetailed(ctx context.Context, flowID uuid.UUID) ([]*models.Cluster, error) {
	return f.ListClusters(ctx, flowID)
}

func (f *fakeStore) UpdateClusterText(ctx context.Context, id uuid.UUID, label, summary *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clusters {
		if c.ID == id {
			if label != nil {
				c.Label = *label
			}
			if summary != nil {
				c.Summary = summary
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UpdateClusterScores(ctx context.Context, id uuid.UUID, scores models.ClusterScores) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clusters {
		if c.ID == id {
			c.SeverityScore = scores.Severity
			c.FrequencyScore = scores.Frequency
			c.SpendIntentScore = scores.SpendIntent
			c.RecencyScore = scores.Recency
			c.TotalScore = scores.Total
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ApplyClusterMerge(ctx context.Context, targetID uuid.UUID, tags []string, scores models.ClusterScores) error {
	f.mu.Lock()
	for _, c := range f.clusters {
		if c.ID == targetID {
			c.Tags = tags
			f.mu.Unlock()
			return f.UpdateClusterScores(ctx, targetID, scores)
		}
	}
	f.mu.Unlock()
	return store.ErrNotFound
}

func (f *fakeStore) DeleteCluster(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.clusters {
		if c.ID == id {
			f.clusters = append(f.clusters[:i], f.clusters[i+1:]...)
			delete(f.ideas, id)
			var kept []*models.ClusterMember
			for _, m := range f.members {
				if m.ClusterID != id {
					kept = append(kept, m)
				}
			}
			f.members = kept
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) DeleteFlowClusters(ctx context.Context, flowID uuid.UUID) error {
	f.mu.Lock()
	ids := []uuid.UUID{}
	for _, c := range f.clusters {
		if c.FlowID == flowID {
			ids = append(ids, c.ID)
		}
	}
	f.mu.Unlock()
	for _, id := range ids {
		if err := f.DeleteCluster(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) CreateIdea(ctx context.Context, idea *models.Idea) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *idea
	f.ideas[idea.ClusterID] = &cp
	return nil
}

func (f *fakeStore) CreateClusterMember(ctx context.Context, member *models.ClusterMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *member
	f.members = append(f.members, &cp)
	return nil
}

func (f *fakeStore) ListClusterMembers(ctx context.Context, clusterID uuid.UUID) ([]*models.ClusterMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ClusterMember
	for _, m := range f.members {
		if m.ClusterID == clusterID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) HasClusterMember(ctx context.Context, clusterID, sourceItemID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.ClusterID == clusterID && m.SourceItemID == sourceItemID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetClusterMember(ctx context.Context, id uuid.UUID) (*models.ClusterMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ReassignClusterMember(ctx context.Context, memberID, newClusterID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.ID == memberID {
			m.ClusterID = newClusterID
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) DeleteClusterMember(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.members {
		if m.ID == id {
			f.members = append(f.members[:i], f.members[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return nil, nil
}
func (f *fakeStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error   { return nil }
func (f *fakeStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)    { return nil, nil }
func (f *fakeStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error         { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeLLM scripts ExtractClusters responses per call index.
type fakeLLM struct {
	mu        sync.Mutex
	healthErr error
	calls     int
	batches   [][]models.ExtractionItem
	contexts  [][]string
	respond   func(call int, items []models.ExtractionItem) (*models.Extraction, error)
}

func (f *fakeLLM) Health(ctx context.Context) error { return f.healthErr }

func (f *fakeLLM) ExtractClusters(ctx context.Context, items []models.ExtractionItem, existingContext []string) (*models.Extraction, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.batches = append(f.batches, items)
	f.contexts = append(f.contexts, existingContext)
	f.mu.Unlock()
	return f.respond(call, items)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

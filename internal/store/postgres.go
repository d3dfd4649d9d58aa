package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/painscope/painscope/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve pooled and transaction-scoped stores.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// InTx runs fn against a transaction-scoped store. Nested calls reuse the
// enclosing transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{q: tx})
	})
}

// --- Flows ---

const flowColumns = `id, name, description, analysis_status, analysis_progress, analysis_error,
	analysis_duration_ms, last_analyzed_at, ingest_status, ingest_progress, ingest_error,
	ingest_duration_ms, created_at, updated_at`

func scanFlow(row pgx.Row) (*models.Flow, error) {
	var f models.Flow
	err := row.Scan(&f.ID, &f.Name, &f.Description, &f.AnalysisStatus, &f.AnalysisProgress,
		&f.AnalysisError, &f.AnalysisDurationMs, &f.LastAnalyzedAt, &f.IngestStatus,
		&f.IngestProgress, &f.IngestError, &f.IngestDurationMs, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) CreateFlow(ctx context.Context, flow *models.Flow) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO flows (id, name, description, analysis_status, ingest_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		flow.ID, flow.Name, flow.Description, flow.AnalysisStatus, flow.IngestStatus,
		flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create flow: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFlow(ctx context.Context, id uuid.UUID) (*models.Flow, error) {
	return scanFlow(s.q.QueryRow(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE id = $1`, id))
}

func (s *PostgresStore) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+flowColumns+` FROM flows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []*models.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func (s *PostgresStore) DeleteFlow(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateFlowAnalysis(ctx context.Context, id uuid.UUID, status models.AnalysisStatus, opts ...FlowAnalysisOption) error {
	params := ApplyFlowAnalysisOptions(opts)

	query := `UPDATE flows SET analysis_status = $2, updated_at = $3`
	args := []any{id, status, time.Now().UTC()}
	argIdx := 4

	switch {
	case params.ClearProgress:
		query += ", analysis_progress = NULL"
	case params.Progress != nil:
		query += fmt.Sprintf(", analysis_progress = $%d", argIdx)
		args = append(args, params.Progress)
		argIdx++
	}
	switch {
	case params.ClearError:
		query += ", analysis_error = NULL"
	case params.ErrorMessage != nil:
		query += fmt.Sprintf(", analysis_error = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.DurationMs != nil {
		query += fmt.Sprintf(", analysis_duration_ms = $%d", argIdx)
		args = append(args, *params.DurationMs)
		argIdx++
	}
	if params.LastAnalyzedAt != nil {
		query += fmt.Sprintf(", last_analyzed_at = $%d", argIdx)
		args = append(args, *params.LastAnalyzedAt)
		argIdx++
	}

	query += " WHERE id = $1"

	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update flow analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateFlowAnalysisProgress(ctx context.Context, id uuid.UUID, progress *models.AnalysisProgress) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE flows SET analysis_progress = $2, updated_at = NOW() WHERE id = $1`,
		id, progress)
	if err != nil {
		return fmt.Errorf("update flow analysis progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateFlowIngest(ctx context.Context, id uuid.UUID, status models.IngestStatus, opts ...FlowIngestOption) error {
	params := ApplyFlowIngestOptions(opts)

	query := `UPDATE flows SET ingest_status = $2, updated_at = $3`
	args := []any{id, status, time.Now().UTC()}
	argIdx := 4

	switch {
	case params.ClearProgress:
		query += ", ingest_progress = NULL"
	case params.Progress != nil:
		query += fmt.Sprintf(", ingest_progress = $%d", argIdx)
		args = append(args, params.Progress)
		argIdx++
	}
	switch {
	case params.ClearError:
		query += ", ingest_error = NULL"
	case params.ErrorMessage != nil:
		query += fmt.Sprintf(", ingest_error = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.DurationMs != nil {
		query += fmt.Sprintf(", ingest_duration_ms = $%d", argIdx)
		args = append(args, *params.DurationMs)
		argIdx++
	}

	query += " WHERE id = $1"

	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update flow ingest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Flow sources & items ---

func (s *PostgresStore) CreateFlowSource(ctx context.Context, src *models.FlowSource) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO flow_sources (id, flow_id, type, params, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		src.ID, src.FlowID, src.Type, src.Params, src.CreatedAt)
	if err != nil {
		return fmt.Errorf("create flow source: %w", err)
	}
	return nil
}

const itemColumns = `id, flow_id, source_id, kind, title, text, reddit_id, author_hash,
	score, num_comments, url, item_created_at, created_at`

func scanSourceItem(row pgx.Row) (*models.SourceItem, error) {
	var it models.SourceItem
	err := row.Scan(&it.ID, &it.FlowID, &it.SourceID, &it.Kind, &it.Title, &it.Text,
		&it.RedditID, &it.AuthorHash, &it.Score, &it.NumComments, &it.URL,
		&it.ItemCreatedAt, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source item: %w", err)
	}
	return &it, nil
}

func (s *PostgresStore) CreateSourceItem(ctx context.Context, item *models.SourceItem) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO source_items (id, flow_id, source_id, kind, title, text, reddit_id,
		 author_hash, score, num_comments, url, item_created_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.FlowID, item.SourceID, item.Kind, item.Title, item.Text,
		item.RedditID, item.AuthorHash, item.Score, item.NumComments, item.URL,
		item.ItemCreatedAt, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create source item: %w", err)
	}
	return nil
}

// ListSourceItems returns all items for a flow ordered by creation time
// ascending; this ordering defines batch partitioning.
func (s *PostgresStore) ListSourceItems(ctx context.Context, flowID uuid.UUID) ([]*models.SourceItem, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+itemColumns+` FROM source_items WHERE flow_id = $1 ORDER BY created_at ASC`,
		flowID)
	if err != nil {
		return nil, fmt.Errorf("list source items: %w", err)
	}
	defer rows.Close()

	var items []*models.SourceItem
	for rows.Next() {
		it, err := scanSourceItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CountSourceItems(ctx context.Context, flowID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_items WHERE flow_id = $1`, flowID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count source items: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) LatestSourceItemAt(ctx context.Context, flowID uuid.UUID) (*time.Time, error) {
	var t time.Time
	err := s.q.QueryRow(ctx,
		`SELECT created_at FROM source_items WHERE flow_id = $1 ORDER BY created_at DESC LIMIT 1`,
		flowID).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest source item: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) GetSourceItem(ctx context.Context, id uuid.UUID) (*models.SourceItem, error) {
	return scanSourceItem(s.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM source_items WHERE id = $1`, id))
}

func (s *PostgresStore) DeleteSourceItem(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM source_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ExistingRedditIDs(ctx context.Context, flowID uuid.UUID, redditIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(redditIDs) == 0 {
		return existing, nil
	}

	rows, err := s.q.Query(ctx,
		`SELECT reddit_id FROM source_items WHERE flow_id = $1 AND reddit_id = ANY($2)`,
		flowID, redditIDs)
	if err != nil {
		return nil, fmt.Errorf("existing reddit ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reddit id: %w", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// --- Analysis runs ---

const runColumns = `id, flow_id, status, started_at, completed_at, duration_ms,
	items_analyzed, batches_processed, error_message`

func scanAnalysisRun(row pgx.Row) (*models.AnalysisRun, error) {
	var r models.AnalysisRun
	err := row.Scan(&r.ID, &r.FlowID, &r.Status, &r.StartedAt, &r.CompletedAt,
		&r.DurationMs, &r.ItemsAnalyzed, &r.BatchesProcessed, &r.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis run: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO analysis_runs (id, flow_id, status, started_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.FlowID, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create analysis run: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAnalysisRun(ctx context.Context, id uuid.UUID, opts ...RunUpdateOption) error {
	params := ApplyRunUpdateOptions(opts)

	sets := []string{}
	args := []any{id}
	argIdx := 2

	appendSet := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
	}

	if params.Status != nil {
		appendSet("status", *params.Status)
	}
	if params.ItemsAnalyzed != nil {
		appendSet("items_analyzed", *params.ItemsAnalyzed)
	}
	if params.BatchesProcessed != nil {
		appendSet("batches_processed", *params.BatchesProcessed)
	}
	if params.CompletedAt != nil {
		appendSet("completed_at", *params.CompletedAt)
	}
	if params.DurationMs != nil {
		appendSet("duration_ms", *params.DurationMs)
	}
	if params.ErrorMessage != nil {
		appendSet("error_message", *params.ErrorMessage)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE analysis_runs SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update analysis run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAnalysisRuns(ctx context.Context, flowID uuid.UUID, limit int) ([]*models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE flow_id = $1 ORDER BY started_at DESC LIMIT $2`,
		flowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AnalysisRun
	for rows.Next() {
		r, err := scanAnalysisRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Clusters ---

const clusterColumns = `id, flow_id, label, summary, tags, severity_score, frequency_score,
	spend_intent_score, recency_score, total_score, created_at, updated_at`

func scanCluster(row pgx.Row) (*models.Cluster, error) {
	var c models.Cluster
	err := row.Scan(&c.ID, &c.FlowID, &c.Label, &c.Summary, &c.Tags, &c.SeverityScore,
		&c.FrequencyScore, &c.SpendIntentScore, &c.RecencyScore, &c.TotalScore,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cluster: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCluster(ctx context.Context, cluster *models.Cluster) error {
	tags := cluster.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO clusters (id, flow_id, label, summary, tags, severity_score,
		 frequency_score, spend_intent_score, recency_score, total_score, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cluster.ID, cluster.FlowID, cluster.Label, cluster.Summary, tags,
		cluster.SeverityScore, cluster.FrequencyScore, cluster.SpendIntentScore,
		cluster.RecencyScore, cluster.TotalScore, cluster.CreatedAt, cluster.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCluster(ctx context.Context, id uuid.UUID) (*models.Cluster, error) {
	return scanCluster(s.q.QueryRow(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id))
}

func (s *PostgresStore) ListClusters(ctx context.Context, flowID uuid.UUID) ([]*models.Cluster, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE flow_id = $1 ORDER BY created_at ASC`,
		flowID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*models.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// ListClustersDetailed returns a flow's clusters with their idea and members
// attached, newest cluster first.
func (s *PostgresStore) ListClustersDetailed(ctx context.Context, flowID uuid.UUID) ([]*models.Cluster, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE flow_id = $1 ORDER BY created_at DESC`,
		flowID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*models.Cluster
	byID := make(map[uuid.UUID]*models.Cluster)
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return clusters, nil
	}

	ideaRows, err := s.q.Query(ctx,
		`SELECT i.id, i.cluster_id, i.pain, i.workaround, i.solution, i.confidence, i.created_at
		 FROM ideas i JOIN clusters c ON c.id = i.cluster_id WHERE c.flow_id = $1`, flowID)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer ideaRows.Close()
	for ideaRows.Next() {
		var idea models.Idea
		if err := ideaRows.Scan(&idea.ID, &idea.ClusterID, &idea.Pain, &idea.Workaround,
			&idea.Solution, &idea.Confidence, &idea.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		if c, ok := byID[idea.ClusterID]; ok {
			ideaCopy := idea
			c.Idea = &ideaCopy
		}
	}
	if err := ideaRows.Err(); err != nil {
		return nil, err
	}

	memberRows, err := s.q.Query(ctx,
		`SELECT m.id, m.cluster_id, m.source_item_id, m.similarity, m.created_at
		 FROM cluster_members m JOIN clusters c ON c.id = m.cluster_id
		 WHERE c.flow_id = $1 ORDER BY m.created_at ASC`, flowID)
	if err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var m models.ClusterMember
		if err := memberRows.Scan(&m.ID, &m.ClusterID, &m.SourceItemID, &m.Similarity, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		if c, ok := byID[m.ClusterID]; ok {
			c.Members = append(c.Members, m)
		}
	}
	return clusters, memberRows.Err()
}

func (s *PostgresStore) UpdateClusterText(ctx context.Context, id uuid.UUID, label, summary *string) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	argIdx := 2

	if label != nil {
		sets = append(sets, fmt.Sprintf("label = $%d", argIdx))
		args = append(args, *label)
		argIdx++
	}
	if summary != nil {
		sets = append(sets, fmt.Sprintf("summary = $%d", argIdx))
		args = append(args, *summary)
		argIdx++
	}

	query := "UPDATE clusters SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update cluster text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateClusterScores sets only the score fields present in scores, leaving
// the rest untouched. Used by refine-mode reconciliation.
func (s *PostgresStore) UpdateClusterScores(ctx context.Context, id uuid.UUID, scores models.ClusterScores) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	argIdx := 2

	appendScore := func(col string, val *float64) {
		if val == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, *val)
		argIdx++
	}
	appendScore("severity_score", scores.Severity)
	appendScore("frequency_score", scores.Frequency)
	appendScore("spend_intent_score", scores.SpendIntent)
	appendScore("recency_score", scores.Recency)
	appendScore("total_score", scores.Total)

	query := "UPDATE clusters SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update cluster scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyClusterMerge writes the merged tag set and all five score fields to the
// merge target in one statement.
func (s *PostgresStore) ApplyClusterMerge(ctx context.Context, targetID uuid.UUID, tags []string, scores models.ClusterScores) error {
	if tags == nil {
		tags = []string{}
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE clusters SET tags = $2, severity_score = $3, frequency_score = $4,
		 spend_intent_score = $5, recency_score = $6, total_score = $7, updated_at = NOW()
		 WHERE id = $1`,
		targetID, tags, scores.Severity, scores.Frequency, scores.SpendIntent,
		scores.Recency, scores.Total)
	if err != nil {
		return fmt.Errorf("apply cluster merge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCluster(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM clusters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFlowClusters removes all clusters for a flow along with their members
// and ideas. Full-mode reconciliation calls this before writing the new set.
func (s *PostgresStore) DeleteFlowClusters(ctx context.Context, flowID uuid.UUID) error {
	if _, err := s.q.Exec(ctx,
		`DELETE FROM cluster_members USING clusters
		 WHERE cluster_members.cluster_id = clusters.id AND clusters.flow_id = $1`, flowID); err != nil {
		return fmt.Errorf("delete flow cluster members: %w", err)
	}
	if _, err := s.q.Exec(ctx,
		`DELETE FROM ideas USING clusters
		 WHERE ideas.cluster_id = clusters.id AND clusters.flow_id = $1`, flowID); err != nil {
		return fmt.Errorf("delete flow ideas: %w", err)
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM clusters WHERE flow_id = $1`, flowID); err != nil {
		return fmt.Errorf("delete flow clusters: %w", err)
	}
	return nil
}

// --- Ideas ---

func (s *PostgresStore) CreateIdea(ctx context.Context, idea *models.Idea) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO ideas (id, cluster_id, pain, workaround, solution, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		idea.ID, idea.ClusterID, idea.Pain, idea.Workaround, idea.Solution,
		idea.Confidence, idea.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create idea: %w", err)
	}
	return nil
}

// --- Cluster members ---

func (s *PostgresStore) CreateClusterMember(ctx context.Context, member *models.ClusterMember) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO cluster_members (id, cluster_id, source_item_id, similarity, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		member.ID, member.ClusterID, member.SourceItemID, member.Similarity, member.CreatedAt)
	if err != nil {
		return fmt.Errorf("create cluster member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListClusterMembers(ctx context.Context, clusterID uuid.UUID) ([]*models.ClusterMember, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, cluster_id, source_item_id, similarity, created_at
		 FROM cluster_members WHERE cluster_id = $1 ORDER BY created_at ASC`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}
	defer rows.Close()

	var members []*models.ClusterMember
	for rows.Next() {
		var m models.ClusterMember
		if err := rows.Scan(&m.ID, &m.ClusterID, &m.SourceItemID, &m.Similarity, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) HasClusterMember(ctx context.Context, clusterID, sourceItemID uuid.UUID) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cluster_members WHERE cluster_id = $1 AND source_item_id = $2)`,
		clusterID, sourceItemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has cluster member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetClusterMember(ctx context.Context, id uuid.UUID) (*models.ClusterMember, error) {
	var m models.ClusterMember
	err := s.q.QueryRow(ctx,
		`SELECT id, cluster_id, source_item_id, similarity, created_at
		 FROM cluster_members WHERE id = $1`, id).
		Scan(&m.ID, &m.ClusterID, &m.SourceItemID, &m.Similarity, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster member: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ReassignClusterMember(ctx context.Context, memberID, newClusterID uuid.UUID) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE cluster_members SET cluster_id = $2 WHERE id = $1`, memberID, newClusterID)
	if err != nil {
		return fmt.Errorf("reassign cluster member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteClusterMember(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM cluster_members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cluster member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

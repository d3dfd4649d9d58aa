package analysis

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

// maxQuoteMembers caps how many of a cluster's quotes become members.
const maxQuoteMembers = 20

// reconcile materializes the accumulated cluster list into persisted rows.
// It must run inside a transaction: a partial write (cluster created but
// member attachment failed) must never be observable.
//
// full mode deletes every existing cluster for the flow up front. refine mode
// keeps them and merges incoming clusters into fuzzy label matches. The
// candidate set is the clusters that existed when the run finalized; clusters
// created during this pass are not candidates for later incoming clusters
// (the accumulator already collapsed same-run label duplicates).
func reconcile(ctx context.Context, st store.Store, flowID uuid.UUID, mode models.AnalysisMode, clusters []models.ExtractedCluster) error {
	var existing []*models.Cluster
	switch mode {
	case models.ModeFull:
		if err := st.DeleteFlowClusters(ctx, flowID); err != nil {
			return fmt.Errorf("clearing clusters: %w", err)
		}
	case models.ModeRefine:
		var err error
		existing, err = st.ListClusters(ctx, flowID)
		if err != nil {
			return fmt.Errorf("loading merge candidates: %w", err)
		}
	}

	for _, c := range clusters {
		targetID, isExisting, err := resolveTarget(ctx, st, flowID, c, existing)
		if err != nil {
			return err
		}
		if err := attachMembers(ctx, st, flowID, targetID, c.Quotes, isExisting); err != nil {
			return err
		}
	}
	return nil
}

// resolveTarget finds the cluster an incoming extraction lands in, creating a
// new cluster (with its idea) when no candidate matches.
func resolveTarget(ctx context.Context, st store.Store, flowID uuid.UUID, c models.ExtractedCluster, candidates []*models.Cluster) (uuid.UUID, bool, error) {
	for _, cand := range candidates {
		if !labelsMatch(cand.Label, c.Label) {
			continue
		}
		// Per-field: incoming value wins only where present. Tags are
		// deliberately not merged here; merging on every refine run would
		// accumulate duplicates.
		scores := models.ClusterScores{
			Severity:    coalesceScore(c.Scores.Severity, cand.SeverityScore),
			Frequency:   coalesceScore(c.Scores.Frequency, cand.FrequencyScore),
			SpendIntent: coalesceScore(c.Scores.SpendIntent, cand.SpendIntentScore),
			Recency:     coalesceScore(c.Scores.Recency, cand.RecencyScore),
			Total:       coalesceScore(c.Scores.Total, cand.TotalScore),
		}
		if err := st.UpdateClusterScores(ctx, cand.ID, scores); err != nil {
			return uuid.Nil, false, fmt.Errorf("updating cluster %s scores: %w", cand.ID, err)
		}
		return cand.ID, true, nil
	}

	label := truncateRunes(strings.TrimSpace(c.Label), models.MaxClusterLabelLen)
	if label == "" {
		label = "Untitled"
	}
	var summary *string
	if c.Pain != "" {
		s := truncateRunes(c.Pain, models.MaxClusterSummaryLen)
		summary = &s
	}

	now := time.Now().UTC()
	cluster := &models.Cluster{
		ID:               uuid.New(),
		FlowID:           flowID,
		Label:            label,
		Summary:          summary,
		Tags:             capTags(c.Tags),
		SeverityScore:    c.Scores.Severity,
		FrequencyScore:   c.Scores.Frequency,
		SpendIntentScore: c.Scores.SpendIntent,
		RecencyScore:     c.Scores.Recency,
		TotalScore:       c.Scores.Total,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := st.CreateCluster(ctx, cluster); err != nil {
		return uuid.Nil, false, fmt.Errorf("creating cluster %q: %w", label, err)
	}

	pain := c.Pain
	if pain == "" {
		pain = label
	}
	solution := "TBD"
	if c.Solution != nil && *c.Solution != "" {
		solution = *c.Solution
	}
	idea := &models.Idea{
		ID:         uuid.New(),
		ClusterID:  cluster.ID,
		Pain:       pain,
		Workaround: c.Workaround,
		Solution:   solution,
		Confidence: c.Scores.Total,
		CreatedAt:  now,
	}
	if err := st.CreateIdea(ctx, idea); err != nil {
		return uuid.Nil, false, fmt.Errorf("creating idea for cluster %q: %w", label, err)
	}
	return cluster.ID, false, nil
}

// attachMembers links up to maxQuoteMembers quotes to the target cluster.
// The model is free to echo back ids that name nothing, so every sourceId is
// verified against the flow's items before a member row is written; bad ids
// are skipped, not fatal.
func attachMembers(ctx context.Context, st store.Store, flowID, clusterID uuid.UUID, quotes []models.Quote, checkExisting bool) error {
	seen := make(map[uuid.UUID]bool)
	attached := 0
	for _, q := range quotes {
		if attached >= maxQuoteMembers {
			break
		}
		itemID, err := uuid.Parse(q.SourceID)
		if err != nil {
			slog.Debug("skipping quote with malformed source id", "cluster_id", clusterID, "source_id", q.SourceID)
			continue
		}
		if seen[itemID] {
			continue
		}
		seen[itemID] = true

		item, err := st.GetSourceItem(ctx, itemID)
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("skipping quote naming unknown item", "cluster_id", clusterID, "source_id", q.SourceID)
			continue
		}
		if err != nil {
			return fmt.Errorf("checking item %s: %w", itemID, err)
		}
		if item.FlowID != flowID {
			continue
		}

		if checkExisting {
			exists, err := st.HasClusterMember(ctx, clusterID, itemID)
			if err != nil {
				return fmt.Errorf("checking member: %w", err)
			}
			if exists {
				continue
			}
		}

		member := &models.ClusterMember{
			ID:           uuid.New(),
			ClusterID:    clusterID,
			SourceItemID: itemID,
			CreatedAt:    time.Now().UTC(),
		}
		if err := st.CreateClusterMember(ctx, member); err != nil {
			return fmt.Errorf("attaching member: %w", err)
		}
		attached++
	}
	return nil
}

// MergeClusters folds the source cluster into the target: members migrate
// (duplicates dropped), tags union up to the cap, each score becomes the
// pairwise max, then the source cluster is deleted. All-or-nothing.
func (s *Service) MergeClusters(ctx context.Context, flowID, sourceID, targetID uuid.UUID) (*models.Cluster, error) {
	if sourceID == targetID {
		return nil, ErrMergeSelf
	}

	source, err := s.store.GetCluster(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.store.GetCluster(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if source.FlowID != flowID || target.FlowID != flowID {
		return nil, store.ErrNotFound
	}

	err = s.store.InTx(ctx, func(tx store.Store) error {
		members, err := tx.ListClusterMembers(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("loading source members: %w", err)
		}
		for _, m := range members {
			exists, err := tx.HasClusterMember(ctx, targetID, m.SourceItemID)
			if err != nil {
				return fmt.Errorf("checking target member: %w", err)
			}
			if exists {
				if err := tx.DeleteClusterMember(ctx, m.ID); err != nil {
					return fmt.Errorf("dropping duplicate member: %w", err)
				}
				continue
			}
			if err := tx.ReassignClusterMember(ctx, m.ID, targetID); err != nil {
				return fmt.Errorf("migrating member: %w", err)
			}
		}

		tags := capTags(append(append([]string{}, target.Tags...), source.Tags...))
		scores := models.ClusterScores{
			Severity:    maxScore(source.SeverityScore, target.SeverityScore),
			Frequency:   maxScore(source.FrequencyScore, target.FrequencyScore),
			SpendIntent: maxScore(source.SpendIntentScore, target.SpendIntentScore),
			Recency:     maxScore(source.RecencyScore, target.RecencyScore),
			Total:       maxScore(source.TotalScore, target.TotalScore),
		}
		if err := tx.ApplyClusterMerge(ctx, targetID, tags, scores); err != nil {
			return fmt.Errorf("applying merge to target: %w", err)
		}

		if err := tx.DeleteCluster(ctx, sourceID); err != nil {
			return fmt.Errorf("deleting source cluster: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.store.GetCluster(ctx, targetID)
}

// labelsMatch reports a fuzzy match: either label is a case-insensitive
// substring of the other.
func labelsMatch(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// coalesceScore prefers the incoming value, keeping the existing one when the
// model estimated nothing.
func coalesceScore(incoming, existing *float64) *float64 {
	if incoming != nil {
		return incoming
	}
	return existing
}

// maxScore returns the pairwise maximum, treating nil as 0. Strongest signal
// wins; merging never averages scores down.
func maxScore(a, b *float64) *float64 {
	va, vb := 0.0, 0.0
	if a != nil {
		va = *a
	}
	if b != nil {
		vb = *b
	}
	if vb > va {
		va = vb
	}
	return &va
}

// capTags deduplicates tags case-sensitively, preserving order, capped at
// models.MaxClusterTags.
func capTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) >= models.MaxClusterTags {
			break
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

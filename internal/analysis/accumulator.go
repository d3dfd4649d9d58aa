package analysis

import (
	"strings"

	"github.com/painscope/painscope/pkg/models"
)

// maxMergedQuotes caps a cluster's quote list when two same-label clusters
// from different batches are merged. Truncation is a plain slice, oldest
// first, not relevance-ranked.
const maxMergedQuotes = 10

// accumulator collects clusters across a run's batches, deduplicating by
// case-insensitive label equality.
type accumulator struct {
	clusters []*models.ExtractedCluster
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

func (a *accumulator) Len() int {
	return len(a.clusters)
}

// Clusters returns the merged cluster list in first-seen order.
func (a *accumulator) Clusters() []models.ExtractedCluster {
	out := make([]models.ExtractedCluster, len(a.clusters))
	for i, c := range a.clusters {
		out[i] = *c
	}
	return out
}

// Merge folds one batch's clusters into the accumulator. Labels equal under
// case-insensitive comparison are the same cluster: quotes concatenate (capped
// at maxMergedQuotes), tags union (capped at MaxClusterTags), and the stored
// score object is replaced wholesale iff the incoming total is strictly
// greater — never blended field by field.
func (a *accumulator) Merge(batch []models.ExtractedCluster) {
	for i := range batch {
		incoming := batch[i]
		existing := a.find(incoming.Label)
		if existing == nil {
			c := incoming
			c.Tags = unionTags(nil, c.Tags)
			a.clusters = append(a.clusters, &c)
			continue
		}

		existing.Quotes = capQuotes(append(existing.Quotes, incoming.Quotes...), maxMergedQuotes)
		existing.Tags = unionTags(existing.Tags, incoming.Tags)

		if incoming.Scores.Total != nil &&
			(existing.Scores.Total == nil || *incoming.Scores.Total > *existing.Scores.Total) {
			existing.Scores = incoming.Scores
		}
	}
}

func (a *accumulator) find(label string) *models.ExtractedCluster {
	for _, c := range a.clusters {
		if strings.EqualFold(c.Label, label) {
			return c
		}
	}
	return nil
}

func capQuotes(quotes []models.Quote, max int) []models.Quote {
	if len(quotes) <= max {
		return quotes
	}
	return quotes[:max]
}

// unionTags appends b's tags onto a, dropping duplicates (case-sensitive) and
// capping the result at MaxClusterTags.
func unionTags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, tag := range append(append([]string{}, a...), b...) {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == models.MaxClusterTags {
			break
		}
	}
	return out
}

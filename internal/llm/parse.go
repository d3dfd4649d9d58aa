package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/painscope/painscope/pkg/models"
)

// ValidationError reports a schema violation in a parsed LLM response,
// naming the offending field path.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("llm response validation failed: %s: %s", e.Path, e.Reason)
}

// Intermediate shapes use pointers so missing required fields are detectable.
type rawQuote struct {
	SourceID *string `json:"sourceId"`
	Quote    *string `json:"quote"`
}

type rawScores struct {
	Severity    *float64 `json:"severity"`
	Frequency   *float64 `json:"frequency"`
	SpendIntent *float64 `json:"spendIntent"`
	Recency     *float64 `json:"recency"`
	Total       *float64 `json:"total"`
}

type rawCluster struct {
	Label      *string    `json:"label"`
	Pain       *string    `json:"pain"`
	Workaround *string    `json:"workaround"`
	Solution   *string    `json:"solution"`
	Quotes     []rawQuote `json:"quotes"`
	Tags       []string   `json:"tags"`
	Scores     *rawScores `json:"scores"`
}

type rawExtraction struct {
	Clusters *[]rawCluster `json:"clusters"`
}

// parseExtraction parses the completion text into a validated Extraction.
// If the text is not directly parseable JSON, it retries on the substring
// between the first '{' and the last '}' before giving up.
func parseExtraction(content string) (*models.Extraction, error) {
	var raw rawExtraction
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		repaired := extractFirstJSONObject(content)
		if repaired == "" {
			return nil, fmt.Errorf("%w: parsing JSON: %v", ErrInvalidResponse, err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("%w: parsing extracted JSON: %v", ErrInvalidResponse, err)
		}
	}

	return validateExtraction(&raw)
}

// extractFirstJSONObject returns the substring between the first '{' and the
// last '}', or "" when no such span exists.
func extractFirstJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func validateExtraction(raw *rawExtraction) (*models.Extraction, error) {
	if raw.Clusters == nil {
		return nil, &ValidationError{Path: "clusters", Reason: "required array is missing"}
	}

	out := &models.Extraction{Clusters: make([]models.ExtractedCluster, 0, len(*raw.Clusters))}
	for i, rc := range *raw.Clusters {
		c, err := validateCluster(i, rc)
		if err != nil {
			return nil, err
		}
		out.Clusters = append(out.Clusters, *c)
	}
	return out, nil
}

func validateCluster(i int, rc rawCluster) (*models.ExtractedCluster, error) {
	path := func(field string) string { return fmt.Sprintf("clusters.%d.%s", i, field) }

	if rc.Label == nil {
		return nil, &ValidationError{Path: path("label"), Reason: "required string is missing"}
	}
	if rc.Pain == nil {
		return nil, &ValidationError{Path: path("pain"), Reason: "required string is missing"}
	}
	if rc.Quotes == nil {
		return nil, &ValidationError{Path: path("quotes"), Reason: "required array is missing"}
	}

	c := &models.ExtractedCluster{
		Label:      *rc.Label,
		Pain:       *rc.Pain,
		Workaround: rc.Workaround,
		Solution:   rc.Solution,
		Tags:       rc.Tags,
	}

	for j, q := range rc.Quotes {
		if q.SourceID == nil {
			return nil, &ValidationError{Path: path(fmt.Sprintf("quotes.%d.sourceId", j)), Reason: "required string is missing"}
		}
		if q.Quote == nil {
			return nil, &ValidationError{Path: path(fmt.Sprintf("quotes.%d.quote", j)), Reason: "required string is missing"}
		}
		c.Quotes = append(c.Quotes, models.Quote{SourceID: *q.SourceID, Quote: *q.Quote})
	}

	if rc.Scores != nil {
		checks := []struct {
			field string
			val   *float64
		}{
			{"severity", rc.Scores.Severity},
			{"frequency", rc.Scores.Frequency},
			{"spendIntent", rc.Scores.SpendIntent},
			{"recency", rc.Scores.Recency},
			{"total", rc.Scores.Total},
		}
		for _, chk := range checks {
			if chk.val != nil && (*chk.val < 0 || *chk.val > 1) {
				return nil, &ValidationError{
					Path:   path("scores." + chk.field),
					Reason: fmt.Sprintf("must be between 0 and 1, got %v", *chk.val),
				}
			}
		}
		c.Scores = models.ClusterScores{
			Severity:    rc.Scores.Severity,
			Frequency:   rc.Scores.Frequency,
			SpendIntent: rc.Scores.SpendIntent,
			Recency:     rc.Scores.Recency,
			Total:       rc.Scores.Total,
		}
	}

	return c, nil
}

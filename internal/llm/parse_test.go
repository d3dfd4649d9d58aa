package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResponse = `{
  "clusters": [
    {
      "label": "Slow Export",
      "pain": "Exports take too long",
      "workaround": "Run exports overnight",
      "quotes": [{"sourceId": "a1", "quote": "export took 2 hours"}],
      "tags": ["export", "performance"],
      "scores": {"severity": 0.7, "total": 0.6}
    }
  ]
}`

func TestParseExtraction_Valid(t *testing.T) {
	got, err := parseExtraction(validResponse)
	require.NoError(t, err)
	require.Len(t, got.Clusters, 1)

	c := got.Clusters[0]
	assert.Equal(t, "Slow Export", c.Label)
	assert.Equal(t, "Exports take too long", c.Pain)
	require.NotNil(t, c.Workaround)
	assert.Equal(t, "Run exports overnight", *c.Workaround)
	assert.Nil(t, c.Solution)
	require.Len(t, c.Quotes, 1)
	assert.Equal(t, "a1", c.Quotes[0].SourceID)
	assert.Equal(t, 0.7, *c.Scores.Severity)
	assert.Nil(t, c.Scores.Frequency)
}

func TestParseExtraction_RepairsSurroundingText(t *testing.T) {
	wrapped := "Sure! Here are the clusters:\n```json\n" + validResponse + "\n```\nLet me know if you need more."
	got, err := parseExtraction(wrapped)
	require.NoError(t, err)
	assert.Len(t, got.Clusters, 1)
}

func TestParseExtraction_NoJSONAtAll(t *testing.T) {
	_, err := parseExtraction("I could not find any problems in these texts.")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseExtraction_EmptyClustersAllowed(t *testing.T) {
	got, err := parseExtraction(`{"clusters": []}`)
	require.NoError(t, err)
	assert.Empty(t, got.Clusters)
}

func TestParseExtraction_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantPath string
	}{
		{
			name:     "missing clusters array",
			content:  `{"result": "ok"}`,
			wantPath: "clusters",
		},
		{
			name:     "missing label",
			content:  `{"clusters":[{"pain":"p","quotes":[]}]}`,
			wantPath: "clusters.0.label",
		},
		{
			name:     "missing pain",
			content:  `{"clusters":[{"label":"l","quotes":[]}]}`,
			wantPath: "clusters.0.pain",
		},
		{
			name:     "missing quotes",
			content:  `{"clusters":[{"label":"l","pain":"p"}]}`,
			wantPath: "clusters.0.quotes",
		},
		{
			name:     "quote without sourceId",
			content:  `{"clusters":[{"label":"l","pain":"p","quotes":[{"quote":"q"}]}]}`,
			wantPath: "clusters.0.quotes.0.sourceId",
		},
		{
			name:     "score out of range",
			content:  `{"clusters":[{"label":"l","pain":"p","quotes":[],"scores":{"severity":1.5}}]}`,
			wantPath: "clusters.0.scores.severity",
		},
		{
			name:     "negative score",
			content:  `{"clusters":[{"label":"l","pain":"p","quotes":[],"scores":{"total":-0.1}}]}`,
			wantPath: "clusters.0.scores.total",
		},
		{
			name:     "second cluster invalid",
			content:  `{"clusters":[{"label":"l","pain":"p","quotes":[]},{"pain":"p","quotes":[]}]}`,
			wantPath: "clusters.1.label",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseExtraction(tt.content)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantPath, vErr.Path)
		})
	}
}

func TestExtractFirstJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractFirstJSONObject(`junk {"a":1} junk`))
	assert.Equal(t, `{"a":{"b":2}}`, extractFirstJSONObject(`{"a":{"b":2}}`))
	assert.Equal(t, "", extractFirstJSONObject("no braces here"))
	assert.Equal(t, "", extractFirstJSONObject("} reversed {"))
}

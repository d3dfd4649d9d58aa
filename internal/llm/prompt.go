package llm

import (
	"fmt"
	"strings"

	"github.com/painscope/painscope/pkg/models"
)

// maxItemChars caps each item's text inside the prompt to bound prompt size.
const maxItemChars = 1200

const systemPrompt = `You are a product analyst who identifies pain points from community discussions. Your job is to find problems users complain about and suggest SaaS solutions.

Key principles:
- Find ANY problems, frustrations, or complaints in the texts
- Group similar problems together into clusters
- For each cluster, identify the pain, current workarounds, and potential solutions
- Score each cluster on severity (0-1), frequency (0-1), spend intent (0-1), recency (0-1), and total (0-1)
- Always return at least 1 cluster if you find ANY problems

Return ONLY valid JSON. No explanations.`

const exampleOutput = `{
  "clusters": [
    {
      "label": "Manual CSV Export Issues",
      "pain": "Users struggle with exporting data to CSV format manually",
      "workaround": "Copy-paste into spreadsheet software",
      "solution": "One-click CSV export tool with formatting options",
      "quotes": [
        {"sourceId": "item-1", "quote": "I hate having to manually format CSV files"},
        {"sourceId": "item-5", "quote": "Exporting to CSV takes forever"}
      ],
      "tags": ["CSV", "export", "automation"],
      "scores": {
        "severity": 0.7,
        "frequency": 0.8,
        "spendIntent": 0.6,
        "recency": 0.9,
        "total": 0.75
      }
    }
  ]
}`

// buildExtractionPrompt assembles the user prompt for one batch. When
// existingContext is non-empty (refine mode) it instructs the model to reuse
// those labels for matching pain points.
func buildExtractionPrompt(items []models.ExtractionItem, existingContext []string) string {
	var b strings.Builder

	plural := ""
	if len(items) != 1 {
		plural = "s"
	}
	fmt.Fprintf(&b, "Analyze the following %d text%s from community discussions. ", len(items), plural)
	b.WriteString("Your task is to identify pain points and group similar problems together.\n\n")
	b.WriteString("CRITICAL: You MUST return at least 1 cluster. If you find ANY problems, complaints, or frustrations in the texts, create clusters for them. Do NOT return an empty clusters array.")

	if len(existingContext) > 0 {
		b.WriteString("\n\nCONTEXT - EXISTING PAIN POINTS:\n")
		b.WriteString("The following pain points have already been identified.\n")
		b.WriteString("If the new items match these existing patterns, group them into a cluster with the EXACT SAME LABEL as the existing one.\n")
		b.WriteString("If they represent NEW problems, create NEW clusters with new labels.\n\n")
		b.WriteString("Existing Labels:\n")
		for _, label := range existingContext {
			fmt.Fprintf(&b, "- %s\n", label)
		}
	}

	b.WriteString("\n\nFor each cluster:\n")
	b.WriteString("- label: Short name (2-5 words) for the pain point. USE AN EXISTING LABEL if the pain point matches one of the contexts.\n")
	b.WriteString("- pain: One clear sentence describing the problem\n")
	b.WriteString("- workaround: What users currently do to work around it (if mentioned)\n")
	b.WriteString("- solution: A SaaS or product idea that could solve it\n")
	b.WriteString("- quotes: 2-5 direct quotes from the texts showing this pain (use the sourceId from the text)\n")
	b.WriteString("- tags: 2-5 relevant tags\n")
	b.WriteString("- scores: Estimate 0.0-1.0 for each metric\n\n")
	b.WriteString("Example output format:\n")
	b.WriteString(exampleOutput)
	b.WriteString("\n\nIMPORTANT: Look for any problems, frustrations, or pain points mentioned. Group similar ones together. Return at least 1 cluster if you find ANY issues.\n\n")
	b.WriteString("Texts to analyze:\n")

	for i, it := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "#%d id=%s", i+1, it.ID)
		if it.Title != nil && *it.Title != "" {
			fmt.Fprintf(&b, " title=%q", *it.Title)
		}
		b.WriteString("\n")
		b.WriteString(truncate(it.Text, maxItemChars))
	}

	b.WriteString("\n\nAnalyze these texts and return clusters in JSON format:")
	return b.String()
}

// truncate caps s at max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

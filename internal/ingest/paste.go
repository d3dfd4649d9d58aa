package ingest

import (
	"regexp"
	"strings"
)

var blankLineSplit = regexp.MustCompile(`\n{2,}`)

// SplitPaste breaks pasted text into items on blank lines. Chunks are
// trimmed and empty ones dropped; text with no blank lines stays one item.
func SplitPaste(text string) []string {
	var chunks []string
	for _, block := range blankLineSplit.Split(text, -1) {
		if b := strings.TrimSpace(block); b != "" {
			chunks = append(chunks, b)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

package models

// ExtractionItem is one unit of text sent to the LLM for extraction.
type ExtractionItem struct {
	ID    string
	Title *string
	Text  string
}

// Quote ties an extracted cluster back to the source item it was seen in.
// SourceID is whatever the model echoed back; callers must not assume it
// names a real source item.
type Quote struct {
	SourceID string `json:"sourceId"`
	Quote    string `json:"quote"`
}

// ExtractedCluster is one candidate pain-point cluster returned by the LLM.
type ExtractedCluster struct {
	Label      string        `json:"label"`
	Pain       string        `json:"pain"`
	Workaround *string       `json:"workaround,omitempty"`
	Solution   *string       `json:"solution,omitempty"`
	Quotes     []Quote       `json:"quotes"`
	Tags       []string      `json:"tags,omitempty"`
	Scores     ClusterScores `json:"scores,omitempty"`
}

// Extraction is the validated top-level shape of one LLM extraction response.
type Extraction struct {
	Clusters []ExtractedCluster `json:"clusters"`
}

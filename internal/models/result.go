package models

// HitSource identifies which sub-index produced a search hit.
type HitSource string

const (
	SourceLexical HitSource = "lexical"
	SourceVector  HitSource = "vector"
	SourceBoth    HitSource = "both"
)

// SearchHit is a single raw hit from a sub-index. Scores are always
// normalized to [0,1] regardless of source so one relevance floor
// applies to both.
type SearchHit struct {
	Ref    string    `json:"ref"`
	Score  float64   `json:"score"`
	Source HitSource `json:"source"`
}

// ScoredEntry is a search hit joined with its entry metadata, as
// returned to the search UI.
type ScoredEntry struct {
	Entry
	Ref   string  `json:"ref"`
	Score float64 `json:"score"`
}

// ContextBlock is one rendered entry inside an assembled context.
type ContextBlock struct {
	Index     int    `json:"index"`
	Ref       string `json:"ref"`
	Relevance string `json:"relevance"`
	Text      string `json:"text"`
}

// Context is the bounded retrieval context handed to the chat flow.
// When no entry clears the relevance floor, Blocks is empty and Text
// holds the sentinel; callers treat that as a valid result.
type Context struct {
	Blocks []ContextBlock `json:"blocks"`
	// Text is the final rendered context, blocks joined by separators,
	// or the no-relevant-entries sentinel.
	Text string `json:"text"`
	// MemoryText is the bounded persistent-memory section, empty when
	// the caller supplied none.
	MemoryText string `json:"memoryText,omitempty"`
}

// MemoryContext carries the pre-built persistent-memory sections from
// the external agent service. The assembler only bounds and labels
// them, it never re-scores or reorders their contents.
type MemoryContext struct {
	Recent   string `json:"recent,omitempty"`
	Semantic string `json:"semantic,omitempty"`
}

package models

// SortOrder controls how interactive search results are ordered after filtering.
type SortOrder string

const (
	SortRelevance  SortOrder = "relevance"
	SortMostRecent SortOrder = "mostRecent"
	SortOldest     SortOrder = "oldest"
)

// SearchOptions are the knobs exposed to the search UI.
type SearchOptions struct {
	// SemanticSearch routes the query to the vector index instead of the
	// lexical index.
	SemanticSearch bool `json:"semanticSearch,omitempty"`
	// OnlyHighlighted keeps only entries with a highlight color.
	OnlyHighlighted bool `json:"onlyHighlighted,omitempty"`
	// HasAttachments keeps only entries with at least one attachment.
	HasAttachments bool      `json:"hasAttachments,omitempty"`
	SortOrder      SortOrder `json:"sortOrder,omitempty"`
}

// Normalize applies defaults to zero-valued options.
func (o *SearchOptions) Normalize() {
	if o.SortOrder == "" {
		o.SortOrder = SortRelevance
	}
}

// ChatTurn is one message of a chat transcript. The retrieval query for
// context assembly is built from the trailing user turns.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

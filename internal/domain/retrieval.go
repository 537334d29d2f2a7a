package domain

// SourceTitle names one of the retrieval backends
type SourceTitle string

const (
	SourceSemantic SourceTitle = "Semantic"
	SourceVector   SourceTitle = "Vector"
	SourceGraph    SourceTitle = "Graph"
)

// SourceOrder is the fixed rendering order of retrieval sections
var SourceOrder = []SourceTitle{SourceSemantic, SourceVector, SourceGraph}

// RetrievalResult is what one source returned for a query
type RetrievalResult struct {
	SourceTitle SourceTitle `json:"source_title"`
	Items       []string    `json:"items"`
	ItemCount   int         `json:"item_count"`
}

// ContextBlock is the merged, size-bounded retrieval context for one turn
type ContextBlock struct {
	Text    string            `json:"text"`
	Sources []RAGSource       `json:"sources"`
	Results []RetrievalResult `json:"-"`
}

// Empty reports whether there is no context text to inject
func (b ContextBlock) Empty() bool {
	return b.Text == ""
}

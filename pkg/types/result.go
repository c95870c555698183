package types

// SearchMode reports which signals served a search request, distinguishing
// "degraded but answered" from full hybrid service.
type SearchMode string

const (
	SearchHybrid      SearchMode = "hybrid"
	SearchLexicalOnly SearchMode = "lexical"
	SearchVectorOnly  SearchMode = "vector"
)

// FusedResult is one ranked search hit. Scores are per-query and never
// persisted. LexicalScore and VectorScore are each in (0, 1] when the
// corresponding signal was present and exactly 0 when it was absent;
// HybridScore is 0 only when both signals are absent.
type FusedResult struct {
	UID string

	LexicalScore float64
	VectorScore  float64
	HybridScore  float64

	// Source location.
	Path      string
	StartLine int
	EndLine   int

	// Symbol metadata, zero-valued for fixed-window chunks.
	Name string
	Kind SymbolKind

	// Snippet is the chunk text.
	Snippet string
}

// IndexResult reports the outcome of (re)indexing one file.
type IndexResult struct {
	Path          string
	Digest        string
	ChunksWritten int
	SymbolCount   int
	Mode          ParseMode
	// Skipped is true when an incremental index found the digest unchanged
	// and left the stored snapshot untouched.
	Skipped bool
}

// BackendStatus describes the selected vector backend, consumed by
// health/status reporting.
type BackendStatus struct {
	BackendKind    string
	Dimension      int
	RecordCount    int
	SelfTestPassed bool
}

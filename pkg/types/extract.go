package types

import "fmt"

// SkipReason records a node or declaration the extractor deliberately
// dropped, kept for diagnostics rather than swallowed.
type SkipReason struct {
	Path     string
	Line     int
	NodeType string
	Reason   string
}

func (s SkipReason) String() string {
	return fmt.Sprintf("%s:%d (%s): %s", s.Path, s.Line, s.NodeType, s.Reason)
}

// ExtractResult is the outcome of running the tiered symbol extractor over
// one file. Mode records the highest tier that produced symbols; when no
// tier did, Mode is ModeFallback and Symbols is empty (the chunking pipeline
// then windows the file).
type ExtractResult struct {
	// Language is the registry name for the file's language, or "" when
	// the extension is not registered (a deliberate not-applicable result,
	// not an error).
	Language string

	Symbols []Symbol
	Mode    ParseMode
	Skipped []SkipReason
}

// Supported reports whether a language grammar or heuristic table was
// registered for the file.
func (r *ExtractResult) Supported() bool {
	return r.Language != ""
}

// AddSkip records a skipped node.
func (r *ExtractResult) AddSkip(path string, line int, nodeType, reason string) {
	r.Skipped = append(r.Skipped, SkipReason{
		Path:     path,
		Line:     line,
		NodeType: nodeType,
		Reason:   reason,
	})
}

// Package extractor turns source files into symbol lists using a tiered
// strategy: grammar-based parsing first, line-pattern heuristics when the
// grammar tier fails or finds nothing, and an empty fallback result when
// neither tier produces symbols (the chunker then windows the file).
package extractor

import (
	"context"
	"log/slog"

	"symdex/pkg/types"
)

// DefaultMaxASTLines caps grammar parsing; files larger than this skip
// straight to the heuristic tier to bound parse time and memory.
const DefaultMaxASTLines = 20000

// Extractor extracts symbols from source files. Safe for concurrent use.
type Extractor struct {
	registry    *Registry
	maxASTLines int
	logger      *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRegistry overrides the default language registry.
func WithRegistry(r *Registry) Option {
	return func(e *Extractor) { e.registry = r }
}

// WithMaxASTLines changes the grammar-tier line cap.
func WithMaxASTLines(n int) Option {
	return func(e *Extractor) { e.maxASTLines = n }
}

// New returns an Extractor with the default language registry.
func New(logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		registry:    DefaultRegistry(),
		maxASTLines: DefaultMaxASTLines,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports whether a language is registered for the file's
// extension. Unsupported files can still be indexed as windowed text.
func (e *Extractor) Supports(path string) bool {
	return e.registry.Lookup(path) != nil
}

// Extract runs the tier chain for one file. It never returns an error:
// every failure mode degrades to a coarser tier, and the result records
// which tier produced the symbols along with any skipped nodes.
func (e *Extractor) Extract(ctx context.Context, path string, content []byte) *types.ExtractResult {
	result := &types.ExtractResult{Mode: types.ModeFallback}

	spec := e.registry.Lookup(path)
	if spec == nil {
		e.logger.Debug("no language for file, using windowed fallback", "path", path)
		return result
	}
	result.Language = spec.Name

	lineCount := countLines(content)
	if lineCount <= e.maxASTLines {
		symbols, err := astExtract(ctx, spec, path, content, result)
		if err != nil {
			e.logger.Debug("grammar tier failed", "path", path, "language", spec.Name, "error", err)
		}
		if len(symbols) > 0 {
			result.Mode = types.ModeAST
			result.Symbols = symbols
			return result
		}
	} else {
		e.logger.Debug("file exceeds grammar tier line cap",
			"path", path, "lines", lineCount, "cap", e.maxASTLines)
	}

	if symbols := heuristicExtract(spec, path, content, result); len(symbols) > 0 {
		result.Mode = types.ModeHeuristic
		result.Symbols = symbols
		return result
	}

	e.logger.Debug("no symbols found, using windowed fallback", "path", path, "language", spec.Name)
	return result
}

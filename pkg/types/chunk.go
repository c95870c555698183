package types

import (
	"errors"
	"fmt"
	"sort"
)

// ParseMode records which extraction tier produced a chunk.
type ParseMode string

const (
	// ModeAST means the chunk came from a grammar-driven syntax tree.
	ModeAST ParseMode = "ast"
	// ModeHeuristic means the chunk came from line-oriented pattern matching.
	ModeHeuristic ParseMode = "heuristic"
	// ModeFallback means the chunk is a fixed-size line window with no
	// symbol metadata.
	ModeFallback ParseMode = "fallback"
)

// Valid reports whether m is a known parse mode.
func (m ParseMode) Valid() bool {
	switch m {
	case ModeAST, ModeHeuristic, ModeFallback:
		return true
	}
	return false
}

// Chunk is the indexable unit: a slice of one source file, symbol-bounded
// when extraction succeeded, a fixed-size line window otherwise.
//
// UID is the external identifier shared across the lexical index, the
// vector backend, and the key-mapping table. A chunk belongs to exactly one
// file snapshot; re-indexing a file replaces all of its chunks atomically.
type Chunk struct {
	UID  string
	Path string

	// Symbol is nil for fixed-window chunks.
	Symbol *Symbol

	// Text is the exact source slice for the chunk's span, prefixed with
	// the symbol's docstring when one is present.
	Text string

	Mode ParseMode
	Tags []string

	StartLine int
	EndLine   int
}

// Validate checks chunk invariants.
func (c *Chunk) Validate() error {
	if c.UID == "" {
		return errors.New("chunk uid is required")
	}
	if c.Path == "" {
		return errors.New("chunk path is required")
	}
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid parse mode %q", c.Mode)
	}
	if c.StartLine < 0 || c.StartLine > c.EndLine {
		return errors.New("chunk line span is inverted or negative")
	}
	if c.Symbol != nil {
		if err := c.Symbol.Validate(); err != nil {
			return fmt.Errorf("chunk symbol: %w", err)
		}
	}
	return nil
}

// HasTag reports whether the chunk carries the given tag.
func (c *Chunk) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SortTags orders tags lexicographically so serialized forms are stable.
func (c *Chunk) SortTags() {
	sort.Strings(c.Tags)
}

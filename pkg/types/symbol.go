package types

import (
	"errors"
	"strings"
	"unicode"
)

// SymbolKind classifies a named syntactic unit. The set is closed:
// extraction tiers map language-specific node types onto these kinds.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindVariable  SymbolKind = "variable"
	KindImport    SymbolKind = "import"
)

// AllSymbolKinds lists every valid kind, in declaration order.
var AllSymbolKinds = []SymbolKind{
	KindFunction, KindMethod, KindClass, KindInterface,
	KindType, KindVariable, KindImport,
}

// Valid reports whether k is one of the closed set of kinds.
func (k SymbolKind) Valid() bool {
	switch k {
	case KindFunction, KindMethod, KindClass, KindInterface, KindType, KindVariable, KindImport:
		return true
	}
	return false
}

// Symbol is a named, typed syntactic unit with a line and byte span.
// Line numbers are 0-based; a valid symbol satisfies
// 0 <= StartLine <= EndLine < fileLineCount.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int

	// Signature is the declaration line (or a condensed form of it).
	Signature string
	// Docstring is the documentation attached to the declaration, if any.
	Docstring string
	// Parent names the enclosing class/module scope. Empty when the
	// enclosing scope was not identified during traversal.
	Parent string
}

// Validate checks structural invariants that hold independent of file size.
// Bounds against the owning file's line count are the extractor's job.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}
	if !s.Kind.Valid() {
		return errors.New("invalid symbol kind")
	}
	if s.StartLine < 0 || s.EndLine < 0 {
		return errors.New("line numbers must be non-negative")
	}
	if s.StartLine > s.EndLine {
		return errors.New("start line must not exceed end line")
	}
	if s.StartByte > s.EndByte {
		return errors.New("start byte must not exceed end byte")
	}
	return nil
}

// InBounds reports whether the symbol's line span fits a file with the
// given line count.
func (s *Symbol) InBounds(lineCount int) bool {
	return s.StartLine >= 0 && s.EndLine < lineCount && s.StartLine <= s.EndLine
}

// IsPrivate reports whether the symbol follows the underscore-prefix
// private naming convention.
func (s *Symbol) IsPrivate() bool {
	return strings.HasPrefix(s.Name, "_")
}

// IsConstantCase reports whether the symbol name is all-uppercase
// (SCREAMING_SNAKE style), the conventional marker for constants.
func (s *Symbol) IsConstantCase() bool {
	hasLetter := false
	for _, r := range s.Name {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// Documented reports whether a docstring was attached during extraction.
func (s *Symbol) Documented() bool {
	return strings.TrimSpace(s.Docstring) != ""
}

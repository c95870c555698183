package extractor

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"symdex/pkg/types"
)

// BlockStyle selects how the heuristic tier finds the end of a declaration
// block.
type BlockStyle int

const (
	// BlockBraces counts brace depth from the declaration line.
	BlockBraces BlockStyle = iota
	// BlockIndent ends the block at the first line indented at or below
	// the declaration's indentation.
	BlockIndent
)

// DocStyle selects the per-language docstring rule. One rule per language,
// applied consistently by both the AST and heuristic tiers.
type DocStyle int

const (
	// DocLeadingComment attaches a comment ending on the line immediately
	// above the declaration.
	DocLeadingComment DocStyle = iota
	// DocBodyString attaches the first string literal inside the
	// declaration's body (the Python convention).
	DocBodyString
)

// HeuristicPattern pairs a declaration regexp with the symbol kind it
// produces. Patterns must define a "name" group; a "parent" group, when
// present, names the enclosing scope directly (Go method receivers).
type HeuristicPattern struct {
	Pattern *regexp.Regexp
	Kind    types.SymbolKind
}

// LanguageSpec describes one language: its tree-sitter grammar and
// symbol-kind query for the AST tier, and its pattern table, block style and
// docstring rule for the heuristic tier.
type LanguageSpec struct {
	Name       string
	Extensions []string

	// Language is the tree-sitter grammar; nil disables the AST tier.
	Language *sitter.Language
	// Query is a tree-sitter query whose outer captures are named after
	// symbol kinds (@function, @class, ...) with @name marking the
	// identifier. Pattern order is priority order when spans collide.
	Query string

	// ScopeNodes are node types that establish a Parent scope during
	// traversal; a function captured inside one is promoted to a method.
	ScopeNodes map[string]bool
	// Receiver resolves a method's enclosing type from the node itself,
	// for languages where methods name their receiver (Go).
	Receiver func(n *sitter.Node, src []byte) string

	Blocks BlockStyle
	Docs   DocStyle

	// CommentPrefixes mark comment lines for the heuristic doc rule.
	CommentPrefixes []string

	Patterns []HeuristicPattern
}

// Registry maps file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]*LanguageSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]*LanguageSpec)}
}

// Register adds a language spec under all of its extensions.
func (r *Registry) Register(spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range spec.Extensions {
		r.byExt[ext] = spec
	}
}

// Lookup returns the spec for a file path by extension, or nil when the
// language is not registered.
func (r *Registry) Lookup(path string) *LanguageSpec {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[ext]
}

// DefaultRegistry returns a registry with the built-in languages.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(goSpec())
	r.Register(pythonSpec())
	r.Register(javascriptSpec())
	r.Register(typescriptSpec())
	return r
}

var slashComments = []string{"//", "/*", "*"}

func goSpec() *LanguageSpec {
	return &LanguageSpec{
		Name:       "go",
		Extensions: []string{"go"},
		Language:   golang.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @function
			(method_declaration name: (field_identifier) @name) @method
			(type_spec name: (type_identifier) @name type: (struct_type)) @class
			(type_spec name: (type_identifier) @name type: (interface_type)) @interface
			(type_spec name: (type_identifier) @name) @type
			(source_file (var_declaration (var_spec name: (identifier) @name)) @variable)
			(source_file (const_declaration (const_spec name: (identifier) @name)) @variable)
			(import_spec path: (interpreted_string_literal) @name) @import
		`,
		Receiver:        goReceiver,
		Blocks:          BlockBraces,
		Docs:            DocLeadingComment,
		CommentPrefixes: slashComments,
		Patterns: []HeuristicPattern{
			{regexp.MustCompile(`^func\s+\((?:\w+\s+)?\*?(?P<parent>\w+)\)\s+(?P<name>\w+)`), types.KindMethod},
			{regexp.MustCompile(`^func\s+(?P<name>\w+)`), types.KindFunction},
			{regexp.MustCompile(`^type\s+(?P<name>\w+)\s+struct\b`), types.KindClass},
			{regexp.MustCompile(`^type\s+(?P<name>\w+)\s+interface\b`), types.KindInterface},
			{regexp.MustCompile(`^type\s+(?P<name>\w+)\b`), types.KindType},
			{regexp.MustCompile(`^(?:var|const)\s+(?P<name>\w+)\b`), types.KindVariable},
		},
	}
}

// goReceiver resolves the receiver type name of a Go method declaration.
func goReceiver(n *sitter.Node, src []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	var ident *sitter.Node
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if ident != nil || node == nil {
			return
		}
		if node.Type() == "type_identifier" {
			ident = node
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(recv)
	if ident == nil {
		return ""
	}
	return ident.Content(src)
}

func pythonSpec() *LanguageSpec {
	return &LanguageSpec{
		Name:       "python",
		Extensions: []string{"py", "pyi"},
		Language:   python.GetLanguage(),
		Query: `
			(class_definition name: (identifier) @name) @class
			(function_definition name: (identifier) @name) @function
			(import_statement (dotted_name) @name) @import
			(import_from_statement module_name: (dotted_name) @name) @import
		`,
		ScopeNodes:      map[string]bool{"class_definition": true},
		Blocks:          BlockIndent,
		Docs:            DocBodyString,
		CommentPrefixes: []string{"#"},
		Patterns: []HeuristicPattern{
			{regexp.MustCompile(`^\s*class\s+(?P<name>\w+)`), types.KindClass},
			{regexp.MustCompile(`^\s*(?:async\s+)?def\s+(?P<name>\w+)`), types.KindFunction},
		},
	}
}

func javascriptSpec() *LanguageSpec {
	return &LanguageSpec{
		Name:       "javascript",
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		Language:   javascript.GetLanguage(),
		Query: `
			(class_declaration name: (identifier) @name) @class
			(function_declaration name: (identifier) @name) @function
			(method_definition name: (property_identifier) @name) @method
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @function
			(import_statement source: (string) @name) @import
		`,
		ScopeNodes:      map[string]bool{"class_declaration": true},
		Blocks:          BlockBraces,
		Docs:            DocLeadingComment,
		CommentPrefixes: slashComments,
		Patterns:        scriptPatterns(false),
	}
}

func typescriptSpec() *LanguageSpec {
	return &LanguageSpec{
		Name:       "typescript",
		Extensions: []string{"ts", "tsx"},
		Language:   typescript.GetLanguage(),
		Query: `
			(class_declaration name: (type_identifier) @name) @class
			(interface_declaration name: (type_identifier) @name) @interface
			(type_alias_declaration name: (type_identifier) @name) @type
			(function_declaration name: (identifier) @name) @function
			(method_definition name: (property_identifier) @name) @method
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @function
			(import_statement source: (string) @name) @import
		`,
		ScopeNodes:      map[string]bool{"class_declaration": true},
		Blocks:          BlockBraces,
		Docs:            DocLeadingComment,
		CommentPrefixes: slashComments,
		Patterns:        scriptPatterns(true),
	}
}

// scriptPatterns is the shared JS/TS heuristic table; TS adds interface and
// type-alias declarations.
func scriptPatterns(ts bool) []HeuristicPattern {
	patterns := []HeuristicPattern{
		{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(?P<name>\w+)`), types.KindClass},
		{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(?P<name>\w+)`), types.KindFunction},
		{regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(?P<name>\w+)\s*=\s*(?:async\s+)?\(`), types.KindFunction},
	}
	if ts {
		patterns = append(patterns,
			HeuristicPattern{regexp.MustCompile(`^\s*(?:export\s+)?interface\s+(?P<name>\w+)`), types.KindInterface},
			HeuristicPattern{regexp.MustCompile(`^\s*(?:export\s+)?type\s+(?P<name>\w+)\s*=`), types.KindType},
		)
	}
	return patterns
}

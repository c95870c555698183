package extractor

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symdex/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func symbolByName(t *testing.T, symbols []types.Symbol, name string) types.Symbol {
	t.Helper()
	for _, s := range symbols {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("symbol %q not found in %d symbols", name, len(symbols))
	return types.Symbol{}
}

func TestExtractGoSymbols(t *testing.T) {
	src := []byte(`package store

// Store holds indexed rows.
type Store struct {
	db *DB
}

// Get looks up one row.
func (s *Store) Get(id string) (string, error) {
	return s.db.get(id)
}

// Searcher matches rows against a query.
type Searcher interface {
	Search(q string) []string
}

// open builds a Store.
func open(path string) *Store {
	return &Store{}
}
`)

	e := New(testLogger())
	result := e.Extract(context.Background(), "store.go", src)

	require.Equal(t, types.ModeAST, result.Mode)
	assert.Equal(t, "go", result.Language)

	st := symbolByName(t, result.Symbols, "Store")
	assert.Equal(t, types.KindClass, st.Kind)
	assert.Equal(t, "Store holds indexed rows.", st.Docstring)

	get := symbolByName(t, result.Symbols, "Get")
	assert.Equal(t, types.KindMethod, get.Kind)
	assert.Equal(t, "Store", get.Parent)
	assert.Equal(t, "Get looks up one row.", get.Docstring)

	iface := symbolByName(t, result.Symbols, "Searcher")
	assert.Equal(t, types.KindInterface, iface.Kind)

	fn := symbolByName(t, result.Symbols, "open")
	assert.Equal(t, types.KindFunction, fn.Kind)
	assert.Empty(t, fn.Parent)
	assert.Equal(t, "func open(path string) *Store {", fn.Signature)
}

func TestExtractPythonMethodParent(t *testing.T) {
	src := []byte(`class Foo:
    """A container."""

    def bar(self):
        x = 1
        return x

    def baz(self):
        pass
`)

	e := New(testLogger())
	result := e.Extract(context.Background(), "foo.py", src)

	require.Equal(t, types.ModeAST, result.Mode)
	assert.Equal(t, "python", result.Language)

	foo := symbolByName(t, result.Symbols, "Foo")
	assert.Equal(t, types.KindClass, foo.Kind)
	assert.Equal(t, 0, foo.StartLine)
	assert.Equal(t, "A container.", foo.Docstring)

	bar := symbolByName(t, result.Symbols, "bar")
	assert.Equal(t, types.KindMethod, bar.Kind)
	assert.Equal(t, "Foo", bar.Parent)
	assert.Equal(t, 3, bar.StartLine)
	assert.Equal(t, 5, bar.EndLine)
}

func TestExtractHeuristicTier(t *testing.T) {
	src := []byte(`package store

// Get looks up one row.
func (s *Store) Get(id string) (string, error) {
	return s.db.get(id)
}

func open(path string) *Store {
	return &Store{}
}
`)

	// A zero line cap forces the grammar tier to be skipped.
	e := New(testLogger(), WithMaxASTLines(0))
	result := e.Extract(context.Background(), "store.go", src)

	require.Equal(t, types.ModeHeuristic, result.Mode)

	get := symbolByName(t, result.Symbols, "Get")
	assert.Equal(t, types.KindMethod, get.Kind)
	assert.Equal(t, "Store", get.Parent)
	assert.Equal(t, 3, get.StartLine)
	assert.Equal(t, 5, get.EndLine)
	assert.Equal(t, "Get looks up one row.", get.Docstring)

	fn := symbolByName(t, result.Symbols, "open")
	assert.Equal(t, types.KindFunction, fn.Kind)
	assert.Equal(t, 7, fn.StartLine)
	assert.Equal(t, 9, fn.EndLine)
}

func TestExtractHeuristicPythonNesting(t *testing.T) {
	src := []byte(`class Foo:
    def bar(self):
        return 1

def standalone():
    return 2
`)

	e := New(testLogger(), WithMaxASTLines(0))
	result := e.Extract(context.Background(), "foo.py", src)

	require.Equal(t, types.ModeHeuristic, result.Mode)

	bar := symbolByName(t, result.Symbols, "bar")
	assert.Equal(t, types.KindMethod, bar.Kind)
	assert.Equal(t, "Foo", bar.Parent)

	standalone := symbolByName(t, result.Symbols, "standalone")
	assert.Equal(t, types.KindFunction, standalone.Kind)
	assert.Empty(t, standalone.Parent)
}

func TestExtractUnsupportedExtension(t *testing.T) {
	e := New(testLogger())
	result := e.Extract(context.Background(), "README.txt", []byte("just prose\n"))

	assert.Equal(t, types.ModeFallback, result.Mode)
	assert.Empty(t, result.Language)
	assert.Empty(t, result.Symbols)
	assert.False(t, result.Supported())
}

func TestExtractNoSymbolsFallsBack(t *testing.T) {
	src := []byte("# configuration values only\nx = 1\ny = 2\n")

	e := New(testLogger())
	result := e.Extract(context.Background(), "settings.py", src)

	assert.Equal(t, types.ModeFallback, result.Mode)
	assert.Equal(t, "python", result.Language)
	assert.Empty(t, result.Symbols)
	assert.True(t, result.Supported())
}

func TestExtractTypeScriptInterface(t *testing.T) {
	src := []byte(`export interface Point {
  x: number;
  y: number;
}

export type Alias = Point;

export const dist = (a: Point, b: Point): number => {
  return Math.hypot(a.x - b.x, a.y - b.y);
};
`)

	e := New(testLogger())
	result := e.Extract(context.Background(), "geo.ts", src)

	require.Equal(t, types.ModeAST, result.Mode)
	assert.Equal(t, "typescript", result.Language)

	pt := symbolByName(t, result.Symbols, "Point")
	assert.Equal(t, types.KindInterface, pt.Kind)

	alias := symbolByName(t, result.Symbols, "Alias")
	assert.Equal(t, types.KindType, alias.Kind)

	dist := symbolByName(t, result.Symbols, "dist")
	assert.Equal(t, types.KindFunction, dist.Kind)
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{"empty", "", 0},
		{"one line no newline", "a", 1},
		{"one line trailing newline", "a\n", 1},
		{"three lines", "a\nb\nc\n", 3},
		{"blank middle line", "a\n\nc", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countLines([]byte(tt.src)))
		})
	}
}

func TestBraceBlockEnd(t *testing.T) {
	lines := []string{
		"func f() {",
		"\tif x {",
		"\t}",
		"}",
		"",
	}
	assert.Equal(t, 3, braceBlockEnd(lines, 0))

	single := []string{"type A = B", "func g() {}"}
	assert.Equal(t, 0, braceBlockEnd(single, 0))
	assert.Equal(t, 1, braceBlockEnd(single, 1))

	last := []string{"func f() {}", "var x = 1"}
	assert.Equal(t, 1, braceBlockEnd(last, 1))

	unclosed := []string{"func f() {", "\treturn"}
	assert.Equal(t, 1, braceBlockEnd(unclosed, 0))
}

func TestHeuristicBracelessDeclSpan(t *testing.T) {
	src := []byte("type Alias = string\nfunc Work() {\n\treturn\n}\n")
	spec := DefaultRegistry().Lookup("broken.go")
	require.NotNil(t, spec)

	var result types.ExtractResult
	symbols := heuristicExtract(spec, "broken.go", src, &result)
	require.Len(t, symbols, 2)

	assert.Equal(t, "Alias", symbols[0].Name)
	assert.Equal(t, 0, symbols[0].StartLine)
	assert.Equal(t, 0, symbols[0].EndLine)

	assert.Equal(t, "Work", symbols[1].Name)
	assert.Equal(t, 1, symbols[1].StartLine)
	assert.Equal(t, 3, symbols[1].EndLine)
}

func TestIndentBlockEnd(t *testing.T) {
	lines := []string{
		"def f():",
		"    a = 1",
		"",
		"    return a",
		"b = 2",
	}
	assert.Equal(t, 3, indentBlockEnd(lines, 0))
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()
	require.NotNil(t, r.Lookup("a/b/main.go"))
	assert.Equal(t, "go", r.Lookup("main.go").Name)
	assert.Equal(t, "typescript", r.Lookup("app.tsx").Name)
	assert.Nil(t, r.Lookup("Makefile"))
	assert.Nil(t, r.Lookup("noext"))
}

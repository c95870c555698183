package extractor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"symdex/pkg/types"
)

// astCandidate is one query match before bounds checks and deduplication.
type astCandidate struct {
	node         *sitter.Node
	kind         types.SymbolKind
	name         string
	patternIndex int
}

// astExtract runs the grammar-driven tier: parse, query for symbol-kind
// captures, resolve names and parents, bounds-check line spans. A parse or
// query failure is reported via types.ErrParseFailure so the caller can fall
// through to the heuristic tier; malformed source never panics.
func astExtract(ctx context.Context, spec *LanguageSpec, path string, src []byte, result *types.ExtractResult) ([]types.Symbol, error) {
	if spec.Language == nil {
		return nil, types.ErrParseFailure
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParseFailure, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: compile query for %s: %v", types.ErrParseFailure, spec.Name, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var candidates []astCandidate
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var outer *sitter.Node
		var kind types.SymbolKind
		var name string
		for _, cap := range m.Captures {
			capName := q.CaptureNameForId(cap.Index)
			if capName == "name" {
				name = strings.Trim(cap.Node.Content(src), `"'`)
				continue
			}
			if k := types.SymbolKind(capName); k.Valid() {
				outer = cap.Node
				kind = k
			}
		}
		if outer == nil {
			continue
		}
		candidates = append(candidates, astCandidate{
			node:         outer,
			kind:         kind,
			name:         name,
			patternIndex: int(m.PatternIndex),
		})
	}

	candidates = dedupBySpan(candidates)

	lineCount := countLines(src)
	symbols := make([]types.Symbol, 0, len(candidates))
	for _, c := range candidates {
		startLine := int(c.node.StartPoint().Row)
		endLine := int(c.node.EndPoint().Row)

		if c.name == "" {
			result.AddSkip(path, startLine, c.node.Type(), "unnamed declaration")
			continue
		}
		sym := types.Symbol{
			Name:      c.name,
			Kind:      c.kind,
			StartLine: startLine,
			EndLine:   endLine,
			StartByte: int(c.node.StartByte()),
			EndByte:   int(c.node.EndByte()),
			Signature: firstLine(c.node.Content(src)),
			Docstring: astDocstring(spec, c.node, src),
			Parent:    astParent(spec, c.node, src),
		}
		// A function captured inside a class scope is a method.
		if sym.Kind == types.KindFunction && sym.Parent != "" {
			sym.Kind = types.KindMethod
		}
		if !sym.InBounds(lineCount) {
			result.AddSkip(path, startLine, c.node.Type(), "line span out of bounds")
			continue
		}
		if err := sym.Validate(); err != nil {
			result.AddSkip(path, startLine, c.node.Type(), err.Error())
			continue
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// dedupBySpan keeps one candidate per byte span, preferring the earliest
// query pattern (pattern order is kind priority: struct before generic
// type, and so on).
func dedupBySpan(candidates []astCandidate) []astCandidate {
	type span struct{ start, end uint32 }
	best := make(map[span]int, len(candidates)) // span -> index into candidates
	order := make([]span, 0, len(candidates))
	for i, c := range candidates {
		key := span{c.node.StartByte(), c.node.EndByte()}
		prev, seen := best[key]
		if !seen {
			best[key] = i
			order = append(order, key)
			continue
		}
		if c.patternIndex < candidates[prev].patternIndex {
			best[key] = i
		}
	}
	out := make([]astCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, candidates[best[key]])
	}
	return out
}

// astParent resolves the nearest enclosing scope name. Receiver-based
// languages (Go) resolve from the node itself; otherwise ancestors are
// walked for a scope node with a name field.
func astParent(spec *LanguageSpec, n *sitter.Node, src []byte) string {
	if spec.Receiver != nil && n.Type() == "method_declaration" {
		return spec.Receiver(n, src)
	}
	if len(spec.ScopeNodes) == 0 {
		return ""
	}
	for p := n.Parent(); p != nil; p = p.Parent() {
		if !spec.ScopeNodes[p.Type()] {
			continue
		}
		if nameNode := p.ChildByFieldName("name"); nameNode != nil {
			return nameNode.Content(src)
		}
	}
	return ""
}

// astDocstring applies the language's single docstring rule.
func astDocstring(spec *LanguageSpec, n *sitter.Node, src []byte) string {
	switch spec.Docs {
	case DocBodyString:
		return bodyStringDoc(n, src)
	default:
		return leadingCommentDoc(n, src)
	}
}

// leadingCommentDoc gathers contiguous comment siblings that end on the line
// immediately above the declaration (adjacency within one line). Wrapper
// nodes starting on the same line (type_declaration around a type_spec,
// export_statement around a declaration) are ascended first so the walk sees
// the comment as a sibling.
func leadingCommentDoc(n *sitter.Node, src []byte) string {
	for n.PrevNamedSibling() == nil && n.Parent() != nil &&
		n.Parent().StartPoint().Row == n.StartPoint().Row && n.Parent().Parent() != nil {
		n = n.Parent()
	}
	var parts []string
	expectRow := int(n.StartPoint().Row) - 1
	for sib := n.PrevNamedSibling(); sib != nil; sib = sib.PrevNamedSibling() {
		if sib.Type() != "comment" || int(sib.EndPoint().Row) < expectRow {
			break
		}
		parts = append([]string{stripCommentMarkers(sib.Content(src))}, parts...)
		expectRow = int(sib.StartPoint().Row) - 1
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// bodyStringDoc returns the first string literal of the declaration body
// (the Python rule).
func bodyStringDoc(n *sitter.Node, src []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	lit := first.NamedChild(0)
	if !strings.Contains(lit.Type(), "string") {
		return ""
	}
	return strings.TrimSpace(trimStringQuotes(lit.Content(src)))
}

func stripCommentMarkers(comment string) string {
	var out []string
	for _, line := range strings.Split(comment, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "///")
		line = strings.TrimPrefix(line, "//")
		line = strings.TrimPrefix(line, "/*")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimPrefix(strings.TrimSpace(line), "*")
		line = strings.TrimPrefix(line, "#")
		out = append(out, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func trimStringQuotes(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// countLines counts newline-delimited lines the way the rest of the engine
// does: a trailing newline does not open a new line.
func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := strings.Count(string(src), "\n") + 1
	if src[len(src)-1] == '\n' {
		n--
	}
	return n
}

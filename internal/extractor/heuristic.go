package extractor

import (
	"strings"

	"symdex/pkg/types"
)

// scopeFrame tracks an enclosing declaration while scanning line by line,
// so nested definitions can be attributed to a parent.
type scopeFrame struct {
	name    string
	kind    types.SymbolKind
	indent  int
	endLine int
}

// heuristicExtract runs the pattern tier: line-anchored regular expressions
// find declaration starts, and a block finder (brace depth or indentation)
// finds where each declaration ends. It never fails; at worst it finds
// nothing and the caller falls through to windowed chunking.
func heuristicExtract(spec *LanguageSpec, path string, src []byte, result *types.ExtractResult) []types.Symbol {
	lines := splitLines(src)
	offsets := lineOffsets(src)
	lineCount := len(lines)

	var symbols []types.Symbol
	var stack []scopeFrame

	for i, line := range lines {
		// Drop scopes this line has left.
		indent := indentWidth(line)
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			left := i > top.endLine
			if spec.Blocks == BlockIndent && strings.TrimSpace(line) != "" && indent <= top.indent && i > top.endLine {
				left = true
			}
			if !left {
				break
			}
			stack = stack[:len(stack)-1]
		}

		for _, hp := range spec.Patterns {
			m := hp.Pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name, parent := namedGroups(hp.Pattern, m)
			if name == "" {
				result.AddSkip(path, i, "heuristic", "unnamed declaration")
				break
			}
			if parent == "" {
				parent = enclosingScope(stack)
			}

			end := i
			switch spec.Blocks {
			case BlockIndent:
				end = indentBlockEnd(lines, i)
			default:
				end = braceBlockEnd(lines, i)
			}

			kind := hp.Kind
			if kind == types.KindFunction && parent != "" {
				kind = types.KindMethod
			}

			sym := types.Symbol{
				Name:      name,
				Kind:      kind,
				StartLine: i,
				EndLine:   end,
				StartByte: offsets[i],
				EndByte:   lineEndByte(src, offsets, end),
				Signature: strings.TrimSpace(line),
				Docstring: heuristicDocstring(spec, lines, i, end),
				Parent:    parent,
			}
			if !sym.InBounds(lineCount) {
				result.AddSkip(path, i, "heuristic", "line span out of bounds")
				break
			}
			if err := sym.Validate(); err != nil {
				result.AddSkip(path, i, "heuristic", err.Error())
				break
			}
			symbols = append(symbols, sym)

			if kind == types.KindClass {
				stack = append(stack, scopeFrame{name: name, kind: kind, indent: indent, endLine: end})
			}
			break
		}
	}
	return symbols
}

// enclosingScope returns the innermost class on the stack, if any.
func enclosingScope(stack []scopeFrame) string {
	for j := len(stack) - 1; j >= 0; j-- {
		if stack[j].kind == types.KindClass {
			return stack[j].name
		}
	}
	return ""
}

// namedGroups pulls the "name" and "parent" captures out of a match.
func namedGroups(re interface{ SubexpNames() []string }, m []string) (name, parent string) {
	for gi, gname := range re.SubexpNames() {
		if gi >= len(m) {
			break
		}
		switch gname {
		case "name":
			name = m[gi]
		case "parent":
			parent = m[gi]
		}
	}
	return name, parent
}

// braceBlockEnd scans forward from the declaration line tracking brace depth.
// If the declaration never opens a brace within its own line, it is treated
// as a single-line symbol. String and comment awareness is intentionally
// shallow; this tier only runs when grammar parsing already failed.
func braceBlockEnd(lines []string, start int) int {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		if !opened && i > start {
			return start
		}
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i
		}
	}
	return len(lines) - 1
}

// indentBlockEnd returns the last line more deeply indented than the
// declaration, skipping trailing blank lines.
func indentBlockEnd(lines []string, start int) int {
	base := indentWidth(lines[start])
	end := start
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if indentWidth(lines[i]) <= base {
			break
		}
		end = i
	}
	return end
}

// heuristicDocstring mirrors the grammar tier's per-language docstring rule
// using raw lines.
func heuristicDocstring(spec *LanguageSpec, lines []string, start, end int) string {
	if spec.Docs == DocBodyString {
		return bodyStringFromLines(lines, start, end)
	}
	return leadingCommentFromLines(spec, lines, start)
}

func leadingCommentFromLines(spec *LanguageSpec, lines []string, start int) string {
	var parts []string
	for i := start - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		prefix := matchedPrefix(spec.CommentPrefixes, trimmed)
		if prefix == "" {
			break
		}
		text := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		parts = append([]string{text}, parts...)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func matchedPrefix(prefixes []string, line string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return p
		}
	}
	return ""
}

func bodyStringFromLines(lines []string, start, end int) string {
	for i := start + 1; i <= end && i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		quote := ""
		for _, q := range []string{`"""`, `'''`} {
			if strings.HasPrefix(trimmed, q) {
				quote = q
				break
			}
		}
		if quote == "" {
			return ""
		}
		body := strings.TrimPrefix(trimmed, quote)
		if idx := strings.Index(body, quote); idx >= 0 {
			return strings.TrimSpace(body[:idx])
		}
		parts := []string{body}
		for j := i + 1; j <= end && j < len(lines); j++ {
			if idx := strings.Index(lines[j], quote); idx >= 0 {
				parts = append(parts, strings.TrimRight(lines[j][:idx], " \t"))
				return strings.TrimSpace(strings.Join(parts, "\n"))
			}
			parts = append(parts, lines[j])
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return ""
}

func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4
		default:
			return w
		}
	}
	return w
}

// splitLines splits without keeping a phantom final line for a trailing
// newline, matching countLines.
func splitLines(src []byte) []string {
	if len(src) == 0 {
		return nil
	}
	s := string(src)
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// lineOffsets returns the byte offset of each line start.
func lineOffsets(src []byte) []int {
	offsets := []int{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// lineEndByte returns the byte offset one past the end of the given line,
// excluding its newline.
func lineEndByte(src []byte, offsets []int, line int) int {
	if line+1 < len(offsets) {
		end := offsets[line+1] - 1 // strip the newline
		return end
	}
	end := len(src)
	if end > 0 && src[end-1] == '\n' {
		end--
	}
	return end
}

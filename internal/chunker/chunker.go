// Package chunker turns a file and its extracted symbols into indexable
// chunks: one chunk per symbol, or fixed-size line windows when extraction
// found nothing to work with.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"symdex/pkg/types"
)

// DefaultWindowLines is the fallback window size for files without symbols.
const DefaultWindowLines = 200

// FileChunks is the chunking output for a single file.
type FileChunks struct {
	Path     string
	Language string
	Digest   string // hex sha256 of the raw file bytes
	Mode     types.ParseMode
	Chunks   []types.Chunk
	Skipped  []types.SkipReason
}

// Chunker builds chunks from extraction results. Safe for concurrent use.
type Chunker struct {
	windowLines int
	logger      *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindowLines overrides the fallback window size. Values below 1 are
// ignored.
func WithWindowLines(n int) Option {
	return func(c *Chunker) {
		if n >= 1 {
			c.windowLines = n
		}
	}
}

// New returns a Chunker with the default window size.
func New(logger *slog.Logger, opts ...Option) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chunker{windowLines: DefaultWindowLines, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Digest returns the hex sha256 of the raw file bytes, the identity used
// for change detection.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Chunk converts one file's extraction result into chunks. Symbol chunks
// carry the exact source slice of the declaration; when no symbols were
// extracted the file is cut into fixed-size line windows instead, so every
// file yields at least one chunk unless it is empty.
func (c *Chunker) Chunk(path string, content []byte, result *types.ExtractResult) *FileChunks {
	fc := &FileChunks{
		Path:     path,
		Language: result.Language,
		Digest:   Digest(content),
		Mode:     result.Mode,
		Skipped:  result.Skipped,
	}

	if len(result.Symbols) == 0 {
		fc.Chunks = c.windowChunks(path, content)
		return fc
	}

	fc.Chunks = make([]types.Chunk, 0, len(result.Symbols))
	for i := range result.Symbols {
		sym := result.Symbols[i]
		chunk := types.Chunk{
			UID:       uuid.NewString(),
			Path:      path,
			Symbol:    &sym,
			Text:      symbolText(content, &sym),
			Mode:      result.Mode,
			Tags:      symbolTags(result.Mode, &sym),
			StartLine: sym.StartLine,
			EndLine:   sym.EndLine,
		}
		if err := chunk.Validate(); err != nil {
			c.logger.Warn("dropping invalid chunk", "path", path, "symbol", sym.Name, "error", err)
			continue
		}
		fc.Chunks = append(fc.Chunks, chunk)
	}
	if len(fc.Chunks) == 0 {
		fc.Chunks = c.windowChunks(path, content)
	}
	return fc
}

// symbolText is the declaration's source slice, prefixed with its docstring
// when the docstring lives outside the slice (leading comments do, body
// docstrings do not).
func symbolText(content []byte, sym *types.Symbol) string {
	start, end := sym.StartByte, sym.EndByte
	if start < 0 || end > len(content) || start > end {
		start, end = 0, 0
	}
	text := string(content[start:end])
	if sym.Docstring != "" && !strings.Contains(text, sym.Docstring) {
		return sym.Docstring + "\n" + text
	}
	return text
}

// symbolTags derives the chunk's search tags from the symbol.
func symbolTags(mode types.ParseMode, sym *types.Symbol) []string {
	tags := []string{
		"mode:" + string(mode),
		"kind:" + string(sym.Kind),
	}
	if sym.Parent != "" {
		tags = append(tags, "nested", "parent:"+sym.Parent)
	} else {
		tags = append(tags, "top-level")
	}
	if sym.IsPrivate() {
		tags = append(tags, "private")
	}
	if sym.IsConstantCase() {
		tags = append(tags, "constant")
	}
	if sym.Documented() {
		tags = append(tags, "documented")
	}
	return tags
}

// windowChunks cuts the file into consecutive line windows of windowLines
// each; the final window may be shorter.
func (c *Chunker) windowChunks(path string, content []byte) []types.Chunk {
	if len(content) == 0 {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")

	var chunks []types.Chunk
	for start := 0; start < len(lines); start += c.windowLines {
		end := start + c.windowLines - 1
		if end >= len(lines) {
			end = len(lines) - 1
		}
		chunks = append(chunks, types.Chunk{
			UID:       uuid.NewString(),
			Path:      path,
			Text:      strings.Join(lines[start:end+1], "\n"),
			Mode:      types.ModeFallback,
			Tags:      []string{"mode:" + string(types.ModeFallback), fmt.Sprintf("window:%d", len(chunks))},
			StartLine: start,
			EndLine:   end,
		})
	}
	return chunks
}

package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symdex/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(context.Background(), dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func symbolChunk(path, name string, kind types.SymbolKind, startLine, endLine int, body string) types.Chunk {
	return types.Chunk{
		UID:  uuid.NewString(),
		Path: path,
		Symbol: &types.Symbol{
			Name:      name,
			Kind:      kind,
			StartLine: startLine,
			EndLine:   endLine,
			Signature: body,
		},
		Text:      body,
		Mode:      types.ModeAST,
		Tags:      []string{"mode:ast", "kind:" + string(kind)},
		StartLine: startLine,
		EndLine:   endLine,
	}
}

func indexOneFile(t *testing.T, store *Store, path string, chunks ...types.Chunk) []string {
	t.Helper()
	removed, err := store.ReplaceFileIndex(context.Background(), &FileIndex{
		Path:        path,
		Language:    "go",
		Digest:      "digest-" + path,
		Mode:        types.ModeAST,
		SymbolCount: len(chunks),
		Chunks:      chunks,
	})
	require.NoError(t, err)
	return removed
}

func TestReplaceFileIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := symbolChunk("pkg/a.go", "Alpha", types.KindFunction, 0, 4, "func Alpha() {}")
	removed := indexOneFile(t, store, "pkg/a.go", first)
	assert.Empty(t, removed, "first index removes nothing")

	file, err := store.GetFile(ctx, "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, "digest-pkg/a.go", file.Digest)
	assert.Equal(t, types.ModeAST, file.Mode)
	assert.Equal(t, 1, file.SymbolCount)

	// Re-index replaces the chunk set and reports the old UIDs.
	second := symbolChunk("pkg/a.go", "Beta", types.KindFunction, 0, 2, "func Beta() {}")
	removed = indexOneFile(t, store, "pkg/a.go", second)
	assert.Equal(t, []string{first.UID}, removed)

	chunks, err := store.ListChunksByFile(ctx, "pkg/a.go")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, second.UID, chunks[0].UID)
	assert.Equal(t, "Beta", chunks[0].Symbol.Name)
}

func TestGetFileNotIndexed(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetFile(context.Background(), "missing.go")
	assert.ErrorIs(t, err, types.ErrNotIndexed)
}

func TestDeleteFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c1 := symbolChunk("pkg/b.go", "One", types.KindFunction, 0, 1, "func One() {}")
	c2 := symbolChunk("pkg/b.go", "Two", types.KindFunction, 3, 4, "func Two() {}")
	indexOneFile(t, store, "pkg/b.go", c1, c2)

	removed, err := store.DeleteFile(ctx, "pkg/b.go")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{c1.UID, c2.UID}, removed)

	_, err = store.GetFile(ctx, "pkg/b.go")
	assert.ErrorIs(t, err, types.ErrNotIndexed)

	_, err = store.DeleteFile(ctx, "pkg/b.go")
	assert.ErrorIs(t, err, types.ErrNotIndexed)
}

func TestGetChunkByUID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := symbolChunk("pkg/c.go", "Gamma", types.KindMethod, 2, 8, "func (g G) Gamma() {}")
	chunk.Symbol.Parent = "G"
	indexOneFile(t, store, "pkg/c.go", chunk)

	got, err := store.GetChunkByUID(ctx, chunk.UID)
	require.NoError(t, err)
	assert.Equal(t, "pkg/c.go", got.Path)
	assert.Equal(t, "Gamma", got.Symbol.Name)
	assert.Equal(t, "G", got.Symbol.Parent)
	assert.Equal(t, types.KindMethod, got.Symbol.Kind)
	assert.Equal(t, []string{"mode:ast", "kind:method"}, got.Tags)

	_, err = store.GetChunkByUID(ctx, "no-such-uid")
	assert.ErrorIs(t, err, types.ErrNotIndexed)
}

func TestListSymbolsByFileSkipsWindows(t *testing.T) {
	store := newTestStore(t)

	window := types.Chunk{
		UID:       uuid.NewString(),
		Path:      "data.txt",
		Text:      "raw window text",
		Mode:      types.ModeFallback,
		StartLine: 0,
		EndLine:   199,
	}
	sym := symbolChunk("data.txt", "loader", types.KindFunction, 200, 210, "def loader():")
	indexOneFile(t, store, "data.txt", window, sym)

	symbols, err := store.ListSymbolsByFile(context.Background(), "data.txt")
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "loader", symbols[0].Name)
}

func TestSearchLexical(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	indexOneFile(t, store, "pkg/search.go",
		symbolChunk("pkg/search.go", "ParseConfig", types.KindFunction, 0, 10,
			"func ParseConfig(path string) (*Config, error) { return loadConfig(path) }"),
		symbolChunk("pkg/search.go", "WriteOutput", types.KindFunction, 12, 20,
			"func WriteOutput(w io.Writer) error { return nil }"),
	)

	hits, err := store.SearchLexical(ctx, "config", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ParseConfig", hits[0].Name)
	assert.Equal(t, "pkg/search.go", hits[0].Path)
	assert.Equal(t, 0, hits[0].Rank)

	hits, err = store.SearchLexical(ctx, "nonexistentterm", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.SearchLexical(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchLexicalSyntaxError(t *testing.T) {
	store := newTestStore(t)
	indexOneFile(t, store, "pkg/d.go",
		symbolChunk("pkg/d.go", "Delta", types.KindFunction, 0, 1, "func Delta() {}"))

	_, err := store.SearchLexical(context.Background(), `"unterminated`, 10)
	assert.ErrorIs(t, err, types.ErrQuerySyntax)
}

func TestSearchLexicalRankOrder(t *testing.T) {
	store := newTestStore(t)

	// Two chunks mention "cache"; the one with the denser mention ranks first.
	heavy := symbolChunk("pkg/e.go", "CacheGet", types.KindFunction, 0, 3,
		"cache get cache lookup cache hit")
	light := symbolChunk("pkg/e.go", "Flush", types.KindFunction, 5, 9,
		"flush the cache once and log the result of the flush pass")
	indexOneFile(t, store, "pkg/e.go", heavy, light)

	hits, err := store.SearchLexical(context.Background(), "cache", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, heavy.UID, hits[0].UID)
	assert.Equal(t, 0, hits[0].Rank)
	assert.Equal(t, 1, hits[1].Rank)
	assert.LessOrEqual(t, hits[0].BM25, hits[1].BM25)
}

func TestListOrphanVectorKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := symbolChunk("pkg/f.go", "Live", types.KindFunction, 0, 1, "func Live() {}")
	indexOneFile(t, store, "pkg/f.go", chunk)

	_, err := store.DB().ExecContext(ctx,
		`INSERT INTO vector_keys (external_id) VALUES (?), (?)`, chunk.UID, "stale-uid")
	require.NoError(t, err)

	orphans, err := store.ListOrphanVectorKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale-uid"}, orphans)
}

func TestMigrationsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, ApplyMigrations(context.Background(), store.DB()))

	var version string
	err := store.DB().QueryRow(
		`SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

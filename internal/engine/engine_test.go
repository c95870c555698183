package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symdex/internal/embedder"
	"symdex/internal/searcher"
	"symdex/pkg/types"
)

const goSource = `package auth

// Token carries a signed session identity.
type Token struct {
	Subject string
}

// ParseToken decodes and verifies a raw token string.
func ParseToken(raw string) (*Token, error) {
	return decode(raw)
}

func decode(raw string) (*Token, error) {
	return &Token{Subject: raw}, nil
}
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	e, err := Open(context.Background(), Config{
		DBPath:        filepath.Join(t.TempDir(), "index.db"),
		VectorBackend: "computed",
		Workers:       2,
		Embedder:      local,
		Logger:        slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEngineIndexAndSearch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "auth.go", goSource)

	res, err := e.IndexFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, types.ModeAST, res.Mode)
	assert.Equal(t, 3, res.SymbolCount)
	assert.Equal(t, 3, res.ChunksWritten)
	assert.False(t, res.Skipped)

	resp, err := e.Search(ctx, "ParseToken", searcher.Options{Alpha: 0.5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "ParseToken", resp.Results[0].Name)
	assert.Equal(t, path, resp.Results[0].Path)

	status, err := e.VectorBackendStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "computed", status.BackendKind)
	assert.Equal(t, 384, status.Dimension)
	assert.Equal(t, 3, status.RecordCount)
	assert.True(t, status.SelfTestPassed)
}

func TestEngineIndexFileIfChanged(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "auth.go", goSource)

	first, err := e.IndexFileIfChanged(ctx, path)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := e.IndexFileIfChanged(ctx, path)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.SymbolCount, second.SymbolCount)

	writeFile(t, dir, "auth.go", goSource+"\nfunc extra() {}\n")
	third, err := e.IndexFileIfChanged(ctx, path)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	assert.NotEqual(t, first.Digest, third.Digest)
	assert.Equal(t, 4, third.SymbolCount)
}

// Re-indexing the same content must not grow the chunk or vector counts.
func TestEngineReindexIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "auth.go", goSource)

	_, err := e.IndexFile(ctx, path)
	require.NoError(t, err)
	_, err = e.IndexFile(ctx, path)
	require.NoError(t, err)

	status, err := e.VectorBackendStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.RecordCount)

	orphans, err := e.ListOrphanVectors(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestEngineRemoveFile(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "auth.go", goSource)

	_, err := e.IndexFile(ctx, path)
	require.NoError(t, err)

	removed, err := e.RemoveFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = e.GetSymbols(ctx, path)
	assert.ErrorIs(t, err, types.ErrNotIndexed)

	status, err := e.VectorBackendStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.RecordCount)

	orphans, err := e.ListOrphanVectors(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	_, err = e.RemoveFile(ctx, path)
	assert.ErrorIs(t, err, types.ErrNotIndexed)
}

func TestEngineGetSymbols(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "model.py",
		"class Foo:\n    \"\"\"A container.\"\"\"\n\n    def bar(self):\n        x = 1\n        return x\n")

	_, err := e.IndexFile(ctx, path)
	require.NoError(t, err)

	symbols, err := e.GetSymbols(ctx, path)
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.Equal(t, "Foo", symbols[0].Name)
	assert.Equal(t, types.KindClass, symbols[0].Kind)
	assert.Equal(t, "bar", symbols[1].Name)
	assert.Equal(t, types.KindMethod, symbols[1].Kind)
	assert.Equal(t, "Foo", symbols[1].Parent)
}

func TestEngineIndexDir(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, root, "auth.go", goSource)
	writeFile(t, root, "sub/util.py", "def helper():\n    return 1\n")
	writeFile(t, root, "README.md", "# docs\n")             // unsupported extension
	writeFile(t, root, ".git/config.go", "package hidden\n") // hidden dir
	writeFile(t, root, "vendor/dep.go", "package dep\n")     // dependency tree

	stats, err := e.IndexDir(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 4, stats.Symbols)

	again, err := e.IndexDir(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, again.FilesIndexed)
	assert.Equal(t, 2, again.FilesSkipped)
}

// A file the grammar and heuristics cannot decompose still gets indexed as
// windowed text and stays searchable.
func TestEngineWindowFallbackSearchable(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "settings.py",
		"DEBUG = raise\nALLOWED_HOSTS_TOKEN_XYZZY\n")

	res, err := e.IndexFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, types.ModeFallback, res.Mode)
	assert.Equal(t, 0, res.SymbolCount)
	require.Equal(t, 1, res.ChunksWritten)

	resp, err := e.Search(ctx, "ALLOWED_HOSTS_TOKEN_XYZZY", searcher.Options{Alpha: 0})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, path, resp.Results[0].Path)
	assert.Empty(t, resp.Results[0].Name)
}

func TestEngineIndexMissingFile(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.IndexFile(context.Background(), filepath.Join(t.TempDir(), "absent.go"))
	assert.ErrorIs(t, err, types.ErrIO)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvDBPath, "/tmp/custom.db")
	t.Setenv(EnvVectorBackend, "computed")
	t.Setenv(EnvWindowLines, "50")

	cfg := ConfigFromEnv()
	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, "computed", cfg.VectorBackend)
	assert.Equal(t, 50, cfg.WindowLines)
}

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symdex/internal/embedder"
	"symdex/internal/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	s, err := NewServer(context.Background(), engine.Config{
		DBPath:        filepath.Join(t.TempDir(), "index.db"),
		VectorBackend: "computed",
		Embedder:      local,
		Logger:        slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.engine.Close() })
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleGo = `package cache

// Get returns the cached value for key.
func Get(key string) (string, bool) {
	return lookup(key)
}

func lookup(key string) (string, bool) {
	return "", false
}
`

func TestHandleIndexFileAndSearch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := writeSource(t, t.TempDir(), "cache.go", sampleGo)

	result, err := s.handleIndexFile(ctx, callRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)
	indexed := resultJSON(t, result)
	assert.Equal(t, "ast", indexed["mode"])
	assert.Equal(t, float64(2), indexed["symbols"])
	assert.Equal(t, false, indexed["skipped"])

	// Unchanged content is skipped unless forced.
	result, err = s.handleIndexFile(ctx, callRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, result)["skipped"])

	result, err = s.handleIndexFile(ctx, callRequest(map[string]interface{}{"path": path, "force": true}))
	require.NoError(t, err)
	assert.Equal(t, false, resultJSON(t, result)["skipped"])

	result, err = s.handleSearch(ctx, callRequest(map[string]interface{}{
		"query": "Get cached value",
		"alpha": 0.5,
	}))
	require.NoError(t, err)
	searched := resultJSON(t, result)
	assert.Equal(t, "hybrid", searched["served_by"])
	results := searched["results"].([]interface{})
	require.NotEmpty(t, results)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "Get", first["name"])
	assert.Equal(t, path, first["path"])
}

func TestHandleSearchValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearch(ctx, callRequest(map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearch(ctx, callRequest(map[string]interface{}{
		"query": "x", "limit": float64(500),
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearch(ctx, callRequest(map[string]interface{}{
		"query": "x", "kinds": []interface{}{"struct"},
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetSymbols(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := writeSource(t, t.TempDir(), "cache.go", sampleGo)

	_, err := s.handleGetSymbols(ctx, callRequest(map[string]interface{}{"path": path}))
	requireMCPCode(t, err, ErrorCodeNotIndexed)

	_, err = s.handleIndexFile(ctx, callRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)

	result, err := s.handleGetSymbols(ctx, callRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)
	out := resultJSON(t, result)
	symbols := out["symbols"].([]interface{})
	require.Len(t, symbols, 2)
	first := symbols[0].(map[string]interface{})
	assert.Equal(t, "Get", first["name"])
	assert.Equal(t, "function", first["kind"])
	assert.Contains(t, first["docstring"], "cached value")
}

func TestHandleRemoveFile(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := writeSource(t, t.TempDir(), "cache.go", sampleGo)

	_, err := s.handleIndexFile(ctx, callRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)

	result, err := s.handleRemoveFile(ctx, callRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), resultJSON(t, result)["chunks_removed"])

	_, err = s.handleRemoveFile(ctx, callRequest(map[string]interface{}{"path": path}))
	requireMCPCode(t, err, ErrorCodeNotIndexed)
}

func TestHandleIndexDir(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeSource(t, dir, "a.go", sampleGo)
	writeSource(t, dir, "b.py", "def run():\n    return 1\n")

	result, err := s.handleIndexDir(ctx, callRequest(map[string]interface{}{"path": dir}))
	require.NoError(t, err)
	out := resultJSON(t, result)
	assert.Equal(t, float64(2), out["files_indexed"])
	assert.Equal(t, float64(0), out["files_failed"])
}

func TestHandleStatusAndOrphans(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleStatus(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	status := resultJSON(t, result)
	assert.Equal(t, "computed", status["backend"])
	assert.Equal(t, float64(384), status["dimension"])
	assert.Equal(t, true, status["self_test_passed"])

	result, err = s.handleListOrphans(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	orphans := resultJSON(t, result)
	assert.Equal(t, float64(0), orphans["count"])
}

func TestRequirePathValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIndexFile(ctx, callRequest(map[string]interface{}{"path": "relative.go"}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexFile(ctx, callRequest(map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "absent.go"),
	}))
	requireMCPCode(t, err, ErrorCodeIOFailure)
}

func requireMCPCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

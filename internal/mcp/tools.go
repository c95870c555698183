package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"symdex/internal/engine"
	"symdex/internal/searcher"
	"symdex/pkg/types"
)

// MCP error codes.
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotIndexed         = -32001 // File not present in the index
	ErrorCodeIndexingInProgress = -32002 // Another index operation holds the path
	ErrorCodeQuerySyntax        = -32003 // Search query could not be parsed
	ErrorCodeIOFailure          = -32004 // File could not be read
)

func (s *Server) handleIndexFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	force := getBoolDefault(args, "force", false)

	var res *types.IndexResult
	if force {
		res, err = s.engine.IndexFile(ctx, path)
	} else {
		res, err = s.engine.IndexFileIfChanged(ctx, path)
	}
	if err != nil {
		return nil, engineError("indexing failed", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"path":           res.Path,
		"digest":         res.Digest,
		"mode":           string(res.Mode),
		"symbols":        res.SymbolCount,
		"chunks_written": res.ChunksWritten,
		"skipped":        res.Skipped,
	})), nil
}

func (s *Server) handleIndexDir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	stats, err := s.engine.IndexDir(ctx, path)
	if err != nil {
		return nil, engineError("directory indexing failed", err)
	}

	response := map[string]interface{}{
		"files_indexed": stats.FilesIndexed,
		"files_skipped": stats.FilesSkipped,
		"files_failed":  stats.FilesFailed,
		"symbols":       stats.Symbols,
		"chunks":        stats.Chunks,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	if len(stats.Errors) > 0 {
		response["error_count"] = len(stats.Errors)
		if len(stats.Errors) > 5 {
			response["errors"] = stats.Errors[:5]
		} else {
			response["errors"] = stats.Errors
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleRemoveFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	removed, err := s.engine.RemoveFile(ctx, path)
	if err != nil {
		return nil, engineError("remove failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"path":           path,
		"chunks_removed": removed,
	})), nil
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArgs(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, paramError("query", "missing or empty")
	}

	limit := getIntDefault(args, "limit", searcher.DefaultTopK)
	if limit < 1 || limit > 100 {
		return nil, paramError("limit", "must be between 1 and 100")
	}
	alpha := getFloatDefault(args, "alpha", searcher.DefaultAlpha)
	if alpha < 0 || alpha > 1 {
		return nil, paramError("alpha", "must be between 0 and 1")
	}
	kinds, err := parseKinds(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.Search(ctx, query, searcher.Options{
		TopK:        limit,
		Alpha:       alpha,
		FilterKinds: kinds,
	})
	if err != nil {
		return nil, engineError("search failed", err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"path":          r.Path,
			"start_line":    r.StartLine,
			"end_line":      r.EndLine,
			"name":          r.Name,
			"kind":          string(r.Kind),
			"snippet":       r.Snippet,
			"hybrid_score":  r.HybridScore,
			"lexical_score": r.LexicalScore,
			"vector_score":  r.VectorScore,
		}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"served_by": string(resp.ServedBy),
		"results":   results,
	})), nil
}

func (s *Server) handleGetSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	symbols, err := s.engine.GetSymbols(ctx, path)
	if err != nil {
		return nil, engineError("symbol listing failed", err)
	}

	out := make([]map[string]interface{}, len(symbols))
	for i, sym := range symbols {
		entry := map[string]interface{}{
			"name":       sym.Name,
			"kind":       string(sym.Kind),
			"start_line": sym.StartLine,
			"end_line":   sym.EndLine,
			"signature":  sym.Signature,
		}
		if sym.Parent != "" {
			entry["parent"] = sym.Parent
		}
		if sym.Docstring != "" {
			entry["docstring"] = sym.Docstring
		}
		out[i] = entry
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"path":    path,
		"symbols": out,
	})), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.VectorBackendStatus(ctx)
	if err != nil {
		return nil, engineError("status failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"backend":          status.BackendKind,
		"dimension":        status.Dimension,
		"vector_records":   status.RecordCount,
		"self_test_passed": status.SelfTestPassed,
	})), nil
}

func (s *Server) handleListOrphans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	orphans, err := s.engine.ListOrphanVectors(ctx)
	if err != nil {
		return nil, engineError("orphan listing failed", err)
	}
	if orphans == nil {
		orphans = []string{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"orphans": orphans,
		"count":   len(orphans),
	})), nil
}

// MCPError carries a JSON-RPC error code; the framework handles encoding.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

func paramError(param, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("invalid %s parameter", param),
		map[string]interface{}{"param": param, "reason": reason})
}

// engineError maps engine error classes onto MCP codes.
func engineError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrNotIndexed):
		code = ErrorCodeNotIndexed
	case errors.Is(err, engine.ErrIndexBusy):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrQuerySyntax):
		code = ErrorCodeQuerySyntax
	case errors.Is(err, types.ErrIO):
		code = ErrorCodeIOFailure
	}
	return newMCPError(code, message, map[string]interface{}{"error": err.Error()})
}

func toolArgs(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", paramError("path", "missing or empty")
	}
	if !filepath.IsAbs(path) {
		return "", paramError("path", "must be absolute")
	}
	return path, nil
}

func parseKinds(args map[string]interface{}) ([]types.SymbolKind, error) {
	raw, ok := args["kinds"].([]interface{})
	if !ok {
		return nil, nil
	}
	kinds := make([]types.SymbolKind, 0, len(raw))
	for _, v := range raw {
		name, ok := v.(string)
		if !ok {
			return nil, paramError("kinds", "entries must be strings")
		}
		kind := types.SymbolKind(name)
		if !kind.Valid() {
			return nil, paramError("kinds", fmt.Sprintf("unknown symbol kind %q", name))
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"symdex/pkg/types"
)

func indexFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_file",
		Description: "Index or re-index a single source file for search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the source file",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index even when the file content is unchanged",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

func indexDirTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_dir",
		Description: "Incrementally index every supported source file under a directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory root",
				},
			},
			Required: []string{"path"},
		},
	}
}

func removeFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_file",
		Description: "Remove a file and its chunks from the index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the indexed file to remove",
				},
			},
			Required: []string{"path"},
		},
	}
}

func searchTool() mcp.Tool {
	kinds := make([]string, len(types.AllSymbolKinds))
	for i, k := range types.AllSymbolKinds {
		kinds[i] = string(k)
	}
	return mcp.Tool{
		Name:        "search",
		Description: "Search indexed code with hybrid lexical and semantic ranking",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (keywords or natural language)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"alpha": map[string]interface{}{
					"type":        "number",
					"description": "Vector signal weight: 0 is lexical-only, 1 is vector-only",
					"default":     0.6,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"kinds": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these symbol kinds",
					"items": map[string]interface{}{
						"type": "string",
						"enum": kinds,
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

func getSymbolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_symbols",
		Description: "List the extracted symbols of one indexed file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the indexed file",
				},
			},
			Required: []string{"path"},
		},
	}
}

func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "status",
		Description: "Report the vector backend, index size and self-test state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func listOrphansTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_orphans",
		Description: "List vector records whose source chunk no longer exists",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"symdex/internal/engine"
)

const (
	// ServerName is the MCP server name reported during initialization.
	ServerName = "symdex"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
)

// Server wraps the MCP protocol server around one engine instance.
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer builds the engine from cfg and registers all tools.
func NewServer(ctx context.Context, cfg engine.Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		engine: eng,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio and blocks until the client
// disconnects. The engine is closed on return.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("closing engine", "error", err)
		}
	}()
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexFileTool(), s.handleIndexFile)
	s.mcp.AddTool(indexDirTool(), s.handleIndexDir)
	s.mcp.AddTool(removeFileTool(), s.handleRemoveFile)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getSymbolsTool(), s.handleGetSymbols)
	s.mcp.AddTool(statusTool(), s.handleStatus)
	s.mcp.AddTool(listOrphansTool(), s.handleListOrphans)
}

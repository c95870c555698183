// Package mcp implements the Model Context Protocol server for symdex.
//
// The server exposes the index and search engine as MCP tools over stdio
// (JSON-RPC 2.0):
//   - index_file: index or re-index one source file
//   - index_dir: incrementally index a directory tree
//   - remove_file: drop a file from the index
//   - search: hybrid lexical + vector search over indexed chunks
//   - get_symbols: list the extracted symbols of one file
//   - status: backend, dimension and record counts
//   - list_orphans: vector records whose chunk no longer exists
//
// Protocol framing is handled by github.com/mark3labs/mcp-go; handlers here
// only validate arguments, call the engine and shape JSON responses. All
// logging goes to stderr since stdout carries the protocol stream.
package mcp

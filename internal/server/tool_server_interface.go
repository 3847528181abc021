// Package server provides the MCP server implementation for the memory tools.
package server

import (
	"context"

	"github.com/localrivet/mem0mcp/internal/mem0"
)

// ToolServer defines the interface for the MCP server that handles
// memory tool calls from MCP clients.
type ToolServer interface {
	// Initialize builds the tool registry and binds it to the MCP server.
	Initialize() error

	// Start serves on the configured transport until the transport ends.
	Start() error

	// Stop gracefully shuts down the MCP server.
	Stop() error
}

// MemoryClient is the subset of the remote memory client the tools need.
type MemoryClient interface {
	Add(ctx context.Context, text, userID string, category mem0.Category, metadata map[string]interface{}) (*mem0.AddResult, error)
	GetAll(ctx context.Context, userID string, category mem0.Category) ([]mem0.Record, error)
	Search(ctx context.Context, query, userID string, category mem0.Category, limit int) ([]mem0.Record, error)
}

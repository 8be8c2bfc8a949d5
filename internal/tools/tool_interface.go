// Package tools provides the MCP tool implementations for the masking engine.
package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool defines the interface that all MCP tools must implement.
// This provides a standard contract for tool registration and execution.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() interface{}

	// Execute runs the tool with the given arguments and returns the result
	Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error)

	// Annotations returns optional hints about tool behavior for LLMs.
	// Returns nil if no annotations are needed (defaults will be used).
	Annotations() *mcp.ToolAnnotations

	// DefaultTimeout returns the recommended timeout for this tool.
	// Returns 0 to use the client/server default timeout.
	DefaultTimeout() time.Duration
}

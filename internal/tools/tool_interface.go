// Package tools provides the MCP tools exposing log analytics, the ratio
// predictor and the alert scheduler.
package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool defines the interface that all MCP tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() interface{}

	// Execute runs the tool with the given arguments and returns the result.
	// User-facing failures are reported as error results, not Go errors.
	Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error)

	// Annotations returns optional hints about tool behavior for LLMs.
	Annotations() *mcp.ToolAnnotations

	// DefaultTimeout returns the recommended timeout for this tool, or 0 for
	// the server default.
	DefaultTimeout() time.Duration
}

// Default timeouts by tool category.
const (
	DefaultFileTimeout  = 30 * time.Second
	DefaultCycleTimeout = 2 * time.Minute
)

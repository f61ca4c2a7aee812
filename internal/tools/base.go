package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MaxResultSize bounds the text of a tool result. Larger results are cut and
// flagged so clients with small context windows still get valid output.
const MaxResultSize = 100 * 1024

// BaseTool provides common functionality for all tools
type BaseTool struct {
	logger *zap.Logger
}

// NewBaseTool creates a new base tool
func NewBaseTool(logger *zap.Logger) *BaseTool {
	return &BaseTool{logger: logger}
}

// DefaultTimeout implements Tool.
func (t *BaseTool) DefaultTimeout() time.Duration {
	return DefaultFileTimeout
}

// FormatResponse renders result as indented JSON text.
func (t *BaseTool) FormatResponse(result interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}

	text := string(jsonBytes)
	if len(text) > MaxResultSize {
		t.logger.Warn("Truncating tool result",
			zap.Int("size", len(text)),
			zap.Int("limit", MaxResultSize),
		)
		text = text[:MaxResultSize] + "\n... [truncated: result exceeded size limit]"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil
}

// filePathSchema is the input schema shared by the per-file analysis tools.
func filePathSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Name of a log file in the log directory, as returned by list_log_files",
			},
		},
		"required": []string{"file_path"},
	}
}

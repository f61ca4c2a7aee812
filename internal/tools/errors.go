package tools

import (
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
)

// NewToolResultError creates a new tool result with an error message
func NewToolResultError(message string) *mcp.CallToolResult {
	if message == "" {
		message = "An unknown error occurred"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}
}

// NewToolResultErrorWithSuggestion creates a tool result with an error and recovery guidance
func NewToolResultErrorWithSuggestion(message, suggestion string) *mcp.CallToolResult {
	return NewToolResultError(fmt.Sprintf("%s\n\nSuggestion: %s", message, suggestion))
}

// HandleError converts err into an error result, surfacing the code and
// suggestion of structured errors.
func HandleError(err error) *mcp.CallToolResult {
	var se *apperrors.StructuredError
	if errors.As(err, &se) {
		message := fmt.Sprintf("[%s] %s", se.Code, se.Message)
		if se.Suggestion != "" {
			return NewToolResultErrorWithSuggestion(message, se.Suggestion)
		}
		return NewToolResultError(message)
	}
	return NewToolResultError(err.Error())
}

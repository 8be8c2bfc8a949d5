package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/mergedao/masking-mcp-server/internal/errors"
)

// NewToolResultText creates a tool result carrying plain text content
func NewToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: text,
			},
		},
	}
}

// NewToolResultJSON creates a tool result carrying a pretty-printed JSON document
func NewToolResultJSON(value interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format result: %w", err)
	}
	return NewToolResultText(string(data)), nil
}

// NewToolResultError creates a new tool result with an error message
func NewToolResultError(message string) *mcp.CallToolResult {
	// Ensure message is never empty
	if message == "" {
		message = "An unknown error occurred"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: message,
			},
		},
		IsError: true,
	}
}

// NewToolResultFromError renders an engine error, carrying the recovery
// suggestion when the error is structured
func NewToolResultFromError(err error) *mcp.CallToolResult {
	var structured *apperrors.StructuredError
	if errors.As(err, &structured) && structured.Suggestion != "" {
		return NewToolResultErrorWithSuggestion(structured.Message, structured.Suggestion)
	}
	return NewToolResultError(err.Error())
}

// NewToolResultErrorWithSuggestion creates a tool result with an error and recovery guidance
func NewToolResultErrorWithSuggestion(message, suggestion string) *mcp.CallToolResult {
	fullMessage := fmt.Sprintf("%s\n\n💡 **Suggestion:** %s", message, suggestion)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fullMessage,
			},
		},
		IsError: true,
	}
}

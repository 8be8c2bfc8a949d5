package tools

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Annotation helper functions to create common annotation patterns.
// These help ensure consistent annotation across all tools.

// boolPtr returns a pointer to a bool value
func boolPtr(b bool) *bool {
	return &b
}

// MaskingAnnotations returns annotations for masking operations.
// Masking writes mappings but re-masking the same value overwrites them,
// so repeated calls are safe.
func MaskingAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:           title,
		ReadOnlyHint:    false,
		DestructiveHint: boolPtr(false),
		IdempotentHint:  true, // blind upserts, re-masking overwrites
		OpenWorldHint:   boolPtr(false),
	}
}

// RecoveryAnnotations returns annotations for recovery operations.
// Recovery only reads mappings and returns a transformed document.
func RecoveryAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:          title,
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}

// CleanupAnnotations returns annotations for cleanup operations.
// These permanently remove stored mappings and require caution.
func CleanupAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:           title,
		ReadOnlyHint:    false,
		DestructiveHint: boolPtr(true),
		IdempotentHint:  true, // deleting twice is safe (already gone)
		OpenWorldHint:   boolPtr(false),
	}
}

// DefaultAnnotations returns default annotations when no specific hints are needed.
func DefaultAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:         title,
		OpenWorldHint: boolPtr(false),
	}
}

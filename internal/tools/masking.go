package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/audit"
	"github.com/mergedao/masking-mcp-server/internal/document"
	"github.com/mergedao/masking-mcp-server/internal/masking"
)

// BaseTool provides the collaborators shared by all masking tools
type BaseTool struct {
	engine   *masking.Engine
	auditLog *audit.Logger
	logger   *zap.Logger
}

// NewBaseTool creates a new base tool
func NewBaseTool(engine *masking.Engine, auditLog *audit.Logger, logger *zap.Logger) *BaseTool {
	return &BaseTool{
		engine:   engine,
		auditLog: auditLog,
		logger:   logger,
	}
}

// AllTools returns every tool the server exposes
func AllTools(engine *masking.Engine, auditLog *audit.Logger, logger *zap.Logger) []Tool {
	base := NewBaseTool(engine, auditLog, logger)
	return []Tool{
		NewMaskResponseTool(base),
		NewRecoverParametersTool(base),
		NewCleanupConversationTool(base),
	}
}

// MaskResponseTool masks sensitive fields in a tool/API response document
type MaskResponseTool struct {
	*BaseTool
}

// NewMaskResponseTool creates a new tool instance
func NewMaskResponseTool(base *BaseTool) *MaskResponseTool {
	return &MaskResponseTool{BaseTool: base}
}

// Name returns the tool name
func (t *MaskResponseTool) Name() string {
	return "mask_response"
}

// Annotations returns tool hints for LLMs
func (t *MaskResponseTool) Annotations() *mcp.ToolAnnotations {
	return MaskingAnnotations("Mask Response")
}

// Description returns the tool description
func (t *MaskResponseTool) Description() string {
	return `Mask sensitive fields in a JSON response document before it is shown to a model.

Each rule targets fields by path ("data.user.email", "data.keys[*].secret") and
selects a strategy: "full" (all mask characters), "partial" (middle masked, head
and tail preserved) or "pattern" (template with {value}, {username}, {last4}).
Original values are stored so the matching recover_parameters call can restore
them within the same conversation. Rules that fail to parse are skipped; the
rest of the document is still processed.`
}

// InputSchema returns the input schema
func (t *MaskResponseTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"conversation_id": map[string]interface{}{
				"type":        "string",
				"description": "Conversation scope for the stored mappings",
			},
			"response": map[string]interface{}{
				"type":        "object",
				"description": "The JSON response document to mask",
			},
			"sensitive_fields": map[string]interface{}{
				"type":        "array",
				"description": "Masking rules to apply, in order",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"path":            map[string]interface{}{"type": "string", "description": "Field path, supports [N] and [*]"},
						"mask_type":       map[string]interface{}{"type": "string", "enum": []string{"full", "partial", "pattern"}},
						"max_mask_length": map[string]interface{}{"type": "integer"},
						"mask_percentage": map[string]interface{}{"type": "number"},
						"pattern":         map[string]interface{}{"type": "string", "description": "Template for mask_type=pattern"},
						"add_flag":        map[string]interface{}{"type": "boolean", "description": "Wrap the masked value in a recovery envelope"},
						"identifier":      map[string]interface{}{"type": "string", "description": "Custom binding key for direct recovery"},
					},
					"required": []string{"path"},
				},
			},
		},
		"required": []string{"conversation_id", "response", "sensitive_fields"},
	}
}

// DefaultTimeout returns the recommended timeout
func (t *MaskResponseTool) DefaultTimeout() time.Duration {
	return 15 * time.Second
}

// Execute executes the tool
func (t *MaskResponseTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	start := time.Now()

	conversationID, err := GetStringParam(arguments, "conversation_id", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	response, err := GetObjectParam(arguments, "response", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	rawRules, err := GetArrayParam(arguments, "sensitive_fields", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	rules, ruleErrs := masking.ParseRules(rawRules)
	for _, ruleErr := range ruleErrs {
		t.logger.Warn("Ignoring malformed masking rule", zap.Error(ruleErr))
	}
	if len(rules) == 0 && len(ruleErrs) > 0 {
		return NewToolResultErrorWithSuggestion(
			"No valid masking rules in sensitive_fields",
			"Each rule needs a \"path\" and a mask_type of full, partial or pattern.",
		), nil
	}

	doc := document.FromInterface(response)
	masked, stats := t.engine.Mask(ctx, doc, rules, conversationID)

	t.auditLog.LogOperation(ctx, audit.OperationMask, conversationID,
		len(rules), stats.Masked+stats.Redacted, time.Since(start), nil)

	return NewToolResultJSON(masked.ToInterface())
}

// RecoverParametersTool restores original values in outbound request parameters
type RecoverParametersTool struct {
	*BaseTool
}

// NewRecoverParametersTool creates a new tool instance
func NewRecoverParametersTool(base *BaseTool) *RecoverParametersTool {
	return &RecoverParametersTool{BaseTool: base}
}

// Name returns the tool name
func (t *RecoverParametersTool) Name() string {
	return "recover_parameters"
}

// Annotations returns tool hints for LLMs
func (t *RecoverParametersTool) Annotations() *mcp.ToolAnnotations {
	return RecoveryAnnotations("Recover Parameters")
}

// Description returns the tool description
func (t *RecoverParametersTool) Description() string {
	return `Substitute original values for masked placeholders in outbound request parameters.

Fields named in recovery_config.recoverable_fields are recovered wherever they
appear; nested_fields paths are resolved against the "body" parameter; values
wrapped in a {"__sensitive": true, ...} envelope are recovered anywhere and the
envelope is always unwrapped. Recovery is best-effort: values that cannot be
resolved pass through unchanged.`
}

// InputSchema returns the input schema
func (t *RecoverParametersTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"conversation_id": map[string]interface{}{
				"type":        "string",
				"description": "Conversation scope the values were masked under",
			},
			"parameters": map[string]interface{}{
				"type":        "object",
				"description": "Request parameters: flat sections (query, header, path, params) and/or a nested \"body\"",
			},
			"recovery_config": map[string]interface{}{
				"type":        "object",
				"description": "Which fields are eligible for recovery",
				"properties": map[string]interface{}{
					"recoverable_fields": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Flat parameter names eligible for recovery, matched by bare name",
					},
					"field_identifiers": map[string]interface{}{
						"type":        "object",
						"description": "Optional map of field name to the custom identifier used when masking",
					},
					"nested_fields": map[string]interface{}{
						"type":        "array",
						"description": "Paths into the request body holding recoverable values",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"path":        map[string]interface{}{"type": "string"},
								"description": map[string]interface{}{"type": "string"},
								"identifier":  map[string]interface{}{"type": "string"},
							},
							"required": []string{"path"},
						},
					},
				},
			},
		},
		"required": []string{"conversation_id", "parameters"},
	}
}

// DefaultTimeout returns the recommended timeout
func (t *RecoverParametersTool) DefaultTimeout() time.Duration {
	return 15 * time.Second
}

// Execute executes the tool
func (t *RecoverParametersTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	start := time.Now()

	conversationID, err := GetStringParam(arguments, "conversation_id", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	parameters, err := GetObjectParam(arguments, "parameters", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	rawConfig, err := GetObjectParam(arguments, "recovery_config", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	cfg := masking.ParseRecoveryConfig(rawConfig)
	doc := document.FromInterface(parameters)
	recovered, stats := t.engine.Recover(ctx, doc, cfg, conversationID)

	t.auditLog.LogOperation(ctx, audit.OperationRecover, conversationID,
		0, stats.Recovered, time.Since(start), nil)

	return NewToolResultJSON(recovered.ToInterface())
}

// CleanupConversationTool deletes all stored mappings for a conversation
type CleanupConversationTool struct {
	*BaseTool
}

// NewCleanupConversationTool creates a new tool instance
func NewCleanupConversationTool(base *BaseTool) *CleanupConversationTool {
	return &CleanupConversationTool{BaseTool: base}
}

// Name returns the tool name
func (t *CleanupConversationTool) Name() string {
	return "cleanup_conversation"
}

// Annotations returns tool hints for LLMs
func (t *CleanupConversationTool) Annotations() *mcp.ToolAnnotations {
	return CleanupAnnotations("Cleanup Conversation")
}

// Description returns the tool description
func (t *CleanupConversationTool) Description() string {
	return `Delete every stored masking mapping for a conversation immediately.

Call when a conversation ends; afterwards none of its masked values can be
recovered. Idempotent: cleaning an unknown or already-clean conversation
deletes zero mappings and succeeds.`
}

// InputSchema returns the input schema
func (t *CleanupConversationTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"conversation_id": map[string]interface{}{
				"type":        "string",
				"description": "The conversation whose mappings should be deleted",
			},
		},
		"required": []string{"conversation_id"},
	}
}

// DefaultTimeout returns the recommended timeout
func (t *CleanupConversationTool) DefaultTimeout() time.Duration {
	return 10 * time.Second
}

// Execute executes the tool
func (t *CleanupConversationTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	start := time.Now()

	conversationID, err := GetStringParam(arguments, "conversation_id", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	deleted, err := t.engine.Cleanup(ctx, conversationID)
	t.auditLog.LogOperation(ctx, audit.OperationCleanup, conversationID,
		0, deleted, time.Since(start), err)
	if err != nil {
		return NewToolResultFromError(err), nil
	}

	return NewToolResultJSON(map[string]interface{}{
		"conversation_id": conversationID,
		"deleted":         deleted,
	})
}

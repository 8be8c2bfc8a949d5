package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/audit"
	"github.com/mergedao/masking-mcp-server/internal/masking"
	"github.com/mergedao/masking-mcp-server/internal/store"
)

func newTestBase(t *testing.T) *BaseTool {
	t.Helper()
	engine := masking.NewEngine(store.NewMemoryStore(1000), masking.Options{TTL: time.Hour})
	return NewBaseTool(engine, audit.NewLogger(zap.NewNop(), true), zap.NewNop())
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	return decoded
}

func TestMaskResponseTool(t *testing.T) {
	base := newTestBase(t)
	tool := NewMaskResponseTool(base)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"conversation_id": "conv-1",
		"response": map[string]interface{}{
			"data": map[string]interface{}{
				"user": map[string]interface{}{"email": "john.doe@example.com"},
			},
		},
		"sensitive_fields": []interface{}{
			map[string]interface{}{
				"path":      "data.user.email",
				"mask_type": "pattern",
				"pattern":   "{username}@***",
			},
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.JSONEq(t,
		`{"data":{"user":{"email":"john.doe@***"}}}`,
		resultText(t, result))
}

func TestMaskResponseToolMissingArguments(t *testing.T) {
	base := newTestBase(t)
	tool := NewMaskResponseTool(base)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing conversation_id", map[string]interface{}{
			"response":         map[string]interface{}{},
			"sensitive_fields": []interface{}{},
		}},
		{"missing response", map[string]interface{}{
			"conversation_id":  "conv-1",
			"sensitive_fields": []interface{}{},
		}},
		{"missing sensitive_fields", map[string]interface{}{
			"conversation_id": "conv-1",
			"response":        map[string]interface{}{},
		}},
		{"response not an object", map[string]interface{}{
			"conversation_id":  "conv-1",
			"response":         "text",
			"sensitive_fields": []interface{}{},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Execute(context.Background(), tt.args)
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestMaskResponseToolAllRulesMalformed(t *testing.T) {
	base := newTestBase(t)
	tool := NewMaskResponseTool(base)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"conversation_id": "conv-1",
		"response":        map[string]interface{}{"key": "value"},
		"sensitive_fields": []interface{}{
			map[string]interface{}{"mask_type": "full"}, // no path
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMaskRecoverRoundTripThroughTools(t *testing.T) {
	base := newTestBase(t)
	maskTool := NewMaskResponseTool(base)
	recoverTool := NewRecoverParametersTool(base)
	ctx := context.Background()

	maskResult, err := maskTool.Execute(ctx, map[string]interface{}{
		"conversation_id": "conv-1",
		"response": map[string]interface{}{
			"data": map[string]interface{}{"api_key": "sk-1234567890abcdef"},
		},
		"sensitive_fields": []interface{}{
			map[string]interface{}{"path": "data.api_key", "mask_type": "partial"},
		},
	})
	require.NoError(t, err)
	require.False(t, maskResult.IsError)

	masked := resultJSON(t, maskResult)
	maskedKey := masked["data"].(map[string]interface{})["api_key"].(string)
	require.NotEqual(t, "sk-1234567890abcdef", maskedKey)

	recoverResult, err := recoverTool.Execute(ctx, map[string]interface{}{
		"conversation_id": "conv-1",
		"parameters": map[string]interface{}{
			"query": map[string]interface{}{"api_key": maskedKey},
		},
		"recovery_config": map[string]interface{}{
			"recoverable_fields": []interface{}{"api_key"},
		},
	})
	require.NoError(t, err)
	require.False(t, recoverResult.IsError)

	recovered := resultJSON(t, recoverResult)
	assert.Equal(t, "sk-1234567890abcdef",
		recovered["query"].(map[string]interface{})["api_key"])
}

func TestRecoverParametersToolWithoutConfig(t *testing.T) {
	base := newTestBase(t)
	maskTool := NewMaskResponseTool(base)
	recoverTool := NewRecoverParametersTool(base)
	ctx := context.Background()

	// Envelope recovery needs no recovery_config at all
	maskResult, err := maskTool.Execute(ctx, map[string]interface{}{
		"conversation_id": "conv-1",
		"response":        map[string]interface{}{"token": "secret-token-value"},
		"sensitive_fields": []interface{}{
			map[string]interface{}{
				"path":       "token",
				"mask_type":  "full",
				"add_flag":   true,
				"identifier": "auth_token",
			},
		},
	})
	require.NoError(t, err)
	maskedToken := resultJSON(t, maskResult)["token"]

	recoverResult, err := recoverTool.Execute(ctx, map[string]interface{}{
		"conversation_id": "conv-1",
		"parameters":      map[string]interface{}{"anything": maskedToken},
	})
	require.NoError(t, err)
	require.False(t, recoverResult.IsError)

	assert.Equal(t, "secret-token-value", resultJSON(t, recoverResult)["anything"])
}

func TestCleanupConversationTool(t *testing.T) {
	base := newTestBase(t)
	maskTool := NewMaskResponseTool(base)
	cleanupTool := NewCleanupConversationTool(base)
	ctx := context.Background()

	_, err := maskTool.Execute(ctx, map[string]interface{}{
		"conversation_id": "conv-1",
		"response":        map[string]interface{}{"secret": "value-to-clean"},
		"sensitive_fields": []interface{}{
			map[string]interface{}{"path": "secret", "mask_type": "full"},
		},
	})
	require.NoError(t, err)

	result, err := cleanupTool.Execute(ctx, map[string]interface{}{"conversation_id": "conv-1"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, float64(2), resultJSON(t, result)["deleted"])

	// Idempotent second call
	result, err = cleanupTool.Execute(ctx, map[string]interface{}{"conversation_id": "conv-1"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, float64(0), resultJSON(t, result)["deleted"])
}

func TestAllTools(t *testing.T) {
	base := newTestBase(t)
	all := AllTools(base.engine, base.auditLog, base.logger)

	require.Len(t, all, 3)
	names := map[string]bool{}
	for _, tool := range all {
		names[tool.Name()] = true
		assert.NotEmpty(t, tool.Description())
		assert.NotNil(t, tool.InputSchema())
		assert.NotNil(t, tool.Annotations())
	}
	assert.True(t, names["mask_response"])
	assert.True(t, names["recover_parameters"])
	assert.True(t, names["cleanup_conversation"])
}

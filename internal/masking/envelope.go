package masking

import (
	"github.com/mergedao/masking-mcp-server/internal/document"
)

// Sensitive-value envelope: the wire wrapper marking a masked value so
// recovery can find it independent of field name or path. It is produced by
// the masking pipeline, consumed by the recovery pipeline, and never
// persisted.
//
//	{"__sensitive": true, "value": "<masked>", "__binding_key": "<identifier>"}
const (
	EnvelopeFlagKey    = "__sensitive"
	EnvelopeValueKey   = "value"
	EnvelopeBindingKey = "__binding_key"
)

// NewEnvelope builds the envelope document node for a masked value.
// bindingKey is included only when non-empty.
func NewEnvelope(maskedValue, bindingKey string) *document.Value {
	envelope := document.Object()
	envelope.SetField(EnvelopeFlagKey, document.Bool(true))
	envelope.SetField(EnvelopeValueKey, document.String(maskedValue))
	if bindingKey != "" {
		envelope.SetField(EnvelopeBindingKey, document.String(bindingKey))
	}
	return envelope
}

// envelopeParts recognizes an envelope node and extracts its masked value
// and optional binding key. A node is an envelope iff it is an object whose
// __sensitive field is boolean true.
func envelopeParts(node *document.Value) (maskedValue, bindingKey string, ok bool) {
	if node == nil || node.Kind() != document.KindObject {
		return "", "", false
	}
	flag := node.Field(EnvelopeFlagKey)
	if flag == nil || flag.Kind() != document.KindBool || !flag.BoolValue() {
		return "", "", false
	}

	if value := node.Field(EnvelopeValueKey); value != nil && value.IsString() {
		maskedValue = value.StringValue()
	}
	if binding := node.Field(EnvelopeBindingKey); binding != nil && binding.IsString() {
		bindingKey = binding.StringValue()
	}
	return maskedValue, bindingKey, true
}

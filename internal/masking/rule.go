package masking

import (
	"fmt"

	apperrors "github.com/mergedao/masking-mcp-server/internal/errors"
)

// Rule is one declarative masking rule from a tool's sensitive_fields
// configuration. Rules are immutable once parsed.
type Rule struct {
	// Path locates the field(s) to mask: dotted notation with optional
	// [N] indices and [*] wildcards, e.g. "data.keys[*].secret".
	Path string

	// MaskType selects the strategy (full, partial, pattern).
	MaskType MaskType

	// MaxMaskLength bounds the mask run for full and partial strategies.
	MaxMaskLength int

	// MaskPercentage is the fraction of the value masked by the partial
	// strategy (0..1].
	MaskPercentage float64

	// Pattern is the template for the pattern strategy.
	Pattern string

	// AddFlag wraps the masked value in a sensitive-value envelope so
	// recovery can find it independent of field name or path.
	AddFlag bool

	// Identifier is an optional caller-supplied binding key. When set, the
	// stored identifier is derived from it instead of the value's hash, and
	// it travels in the envelope as __binding_key.
	Identifier string
}

// ParseRule builds a Rule from a decoded-JSON rule object. Strategy
// parameters get their documented defaults; a missing path or unknown
// mask_type is an error so the pipeline can log and skip the rule.
func ParseRule(raw map[string]interface{}) (Rule, error) {
	rule := Rule{
		MaskType:       MaskTypePartial,
		MaskPercentage: DefaultMaskPercentage,
		Pattern:        DefaultPattern,
	}

	path, _ := raw["path"].(string)
	if path == "" {
		return rule, fmt.Errorf("rule has no path")
	}
	rule.Path = path

	if mt, ok := raw["mask_type"].(string); ok && mt != "" {
		rule.MaskType = MaskType(mt)
	}
	switch rule.MaskType {
	case MaskTypeFull:
		rule.MaxMaskLength = DefaultFullMaskLength
	case MaskTypePartial:
		rule.MaxMaskLength = DefaultPartialMaskLength
	case MaskTypePattern:
		// pattern carries its own shape
	default:
		return rule, fmt.Errorf("unsupported mask_type %q", rule.MaskType)
	}

	if v, ok := numberValue(raw["max_mask_length"]); ok && v > 0 {
		rule.MaxMaskLength = int(v)
	}
	if v, ok := numberValue(raw["mask_percentage"]); ok && v > 0 {
		rule.MaskPercentage = v
	}
	if p, ok := raw["pattern"].(string); ok && p != "" {
		rule.Pattern = p
	}
	if b, ok := raw["add_flag"].(bool); ok {
		rule.AddFlag = b
	}
	if id, ok := raw["identifier"].(string); ok {
		rule.Identifier = id
	}

	return rule, nil
}

// ParseRules parses a sensitive_fields array. Unparseable entries are
// returned as errors alongside the valid rules; the pipeline logs and skips
// them without aborting the rest (partial success is the norm).
func ParseRules(raw []interface{}) ([]Rule, []error) {
	var rules []Rule
	var errs []error
	for i, entry := range raw {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			errs = append(errs, apperrors.NewInvalidRule(i, "not an object"))
			continue
		}
		rule, err := ParseRule(obj)
		if err != nil {
			errs = append(errs, apperrors.NewInvalidRule(i, err.Error()).WithCause(err))
			continue
		}
		rules = append(rules, rule)
	}
	return rules, errs
}

// NestedField locates one recoverable value inside a request body.
type NestedField struct {
	Path        string
	Description string

	// Identifier optionally correlates the path with the custom identifier
	// used when the value was masked, enabling direct identifier recovery
	// before any reverse lookup.
	Identifier string
}

// RecoveryConfig is a tool's request-side configuration.
type RecoveryConfig struct {
	// RecoverableFields are flat parameter names eligible for recovery,
	// matched by bare field name at any nesting depth.
	RecoverableFields []string

	// FieldIdentifiers optionally maps a recoverable field name to the
	// custom identifier its masking rule used.
	FieldIdentifiers map[string]string

	// NestedFields locate recoverable values inside the request body.
	NestedFields []NestedField
}

// ParseRecoveryConfig builds a RecoveryConfig from a decoded-JSON object.
// A nil or empty object yields a zero config: only envelope candidates are
// recovered then.
func ParseRecoveryConfig(raw map[string]interface{}) RecoveryConfig {
	var cfg RecoveryConfig
	if raw == nil {
		return cfg
	}

	if fields, ok := raw["recoverable_fields"].([]interface{}); ok {
		for _, f := range fields {
			if name, ok := f.(string); ok && name != "" {
				cfg.RecoverableFields = append(cfg.RecoverableFields, name)
			}
		}
	}

	if idents, ok := raw["field_identifiers"].(map[string]interface{}); ok {
		cfg.FieldIdentifiers = make(map[string]string, len(idents))
		for name, id := range idents {
			if s, ok := id.(string); ok && s != "" {
				cfg.FieldIdentifiers[name] = s
			}
		}
	}

	if nested, ok := raw["nested_fields"].([]interface{}); ok {
		for _, entry := range nested {
			obj, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			field := NestedField{}
			field.Path, _ = obj["path"].(string)
			field.Description, _ = obj["description"].(string)
			field.Identifier, _ = obj["identifier"].(string)
			if field.Path != "" {
				cfg.NestedFields = append(cfg.NestedFields, field)
			}
		}
	}

	return cfg
}

// isRecoverable reports whether a bare field name is configured for recovery.
func (c *RecoveryConfig) isRecoverable(name string) bool {
	for _, f := range c.RecoverableFields {
		if f == name {
			return true
		}
	}
	return false
}

// numberValue extracts a float from the numeric types decoded JSON produces.
func numberValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Package masking implements the sensitive data masking and recovery engine:
// declarative field rules, mask strategies, identifier bindings, and the
// mask/recover/cleanup pipelines that the MCP tools expose.
package masking

import (
	"fmt"
	"math"
	"strings"
)

// MaskType selects the masking strategy for a rule.
type MaskType string

// Supported strategies.
const (
	MaskTypeFull    MaskType = "full"
	MaskTypePartial MaskType = "partial"
	MaskTypePattern MaskType = "pattern"
)

// Strategy defaults. These match the tool-configuration defaults callers
// rely on, so changing them silently changes recorded masked renderings.
const (
	DefaultFullMaskLength    = 8
	DefaultPartialMaskLength = 10
	DefaultMaskPercentage    = 0.6
	DefaultPattern           = "{value}"
)

// maskChar is the masking character for full and partial strategies.
const maskChar = "*"

// Pattern placeholders recognized by the pattern strategy.
const (
	placeholderValue    = "{value}"
	placeholderUsername = "{username}"
	placeholderLast4    = "{last4}"
)

// FullMask replaces the whole value with mask characters. The output length
// is min(len(value), maxMaskLength) with a floor of 1, so the rendering
// carries no pattern signal beyond a rough length bound.
func FullMask(value string, maxMaskLength int) string {
	if maxMaskLength <= 0 {
		maxMaskLength = DefaultFullMaskLength
	}
	n := len(value)
	if n > maxMaskLength {
		n = maxMaskLength
	}
	if n < 1 {
		n = 1
	}
	return strings.Repeat(maskChar, n)
}

// PartialMask masks the middle of the value, preserving literal head and
// tail bytes of the original. The mask run is round(len*percentage) capped
// at maxMaskLength; the preserved remainder splits evenly between head and
// tail with the odd byte going to the tail. Because the head and tail are
// byte-for-byte slices of the original, embedded spaces stay visible.
func PartialMask(value string, maskPercentage float64, maxMaskLength int) string {
	if maskPercentage <= 0 {
		maskPercentage = DefaultMaskPercentage
	}
	if maskPercentage > 1 {
		maskPercentage = 1
	}
	if maxMaskLength <= 0 {
		maxMaskLength = DefaultPartialMaskLength
	}

	n := len(value)
	if n == 0 {
		return value
	}

	masked := int(math.Round(float64(n) * maskPercentage))
	if masked > maxMaskLength {
		masked = maxMaskLength
	}
	if masked < 1 {
		masked = 1
	}
	if masked > n {
		masked = n
	}

	head := (n - masked) / 2
	tail := n - masked - head

	return value[:head] + strings.Repeat(maskChar, masked) + value[n-tail:]
}

// PatternMask renders the value through a template. Recognized placeholders:
//
//	{value}    the original verbatim (use with care)
//	{username} the substring before the first '@' (email-shaped inputs)
//	{last4}    the last 4 characters, or the whole value when shorter
//
// Unknown placeholders are left literal.
func PatternMask(value, pattern string) string {
	if pattern == "" {
		pattern = DefaultPattern
	}

	out := pattern
	if strings.Contains(out, placeholderValue) {
		out = strings.ReplaceAll(out, placeholderValue, value)
	}
	if strings.Contains(out, placeholderUsername) {
		username := value
		if at := strings.IndexByte(value, '@'); at >= 0 {
			username = value[:at]
		}
		out = strings.ReplaceAll(out, placeholderUsername, username)
	}
	if strings.Contains(out, placeholderLast4) {
		last4 := value
		if len(value) > 4 {
			last4 = value[len(value)-4:]
		}
		out = strings.ReplaceAll(out, placeholderLast4, last4)
	}
	return out
}

// Apply runs the rule's strategy over a string value.
func (r *Rule) Apply(value string) (string, error) {
	switch r.MaskType {
	case MaskTypeFull:
		return FullMask(value, r.MaxMaskLength), nil
	case MaskTypePartial:
		return PartialMask(value, r.MaskPercentage, r.MaxMaskLength), nil
	case MaskTypePattern:
		return PatternMask(value, r.Pattern), nil
	default:
		return "", fmt.Errorf("unsupported mask_type %q", r.MaskType)
	}
}

package masking

import (
	"strings"
	"testing"
)

func TestFullMaskLength(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		maxLen  int
		wantLen int
	}{
		{"shorter than cap", "abc", 8, 3},
		{"equal to cap", "12345678", 8, 8},
		{"longer than cap", "eyJhbGciOiJIUzI1NiJ9.payload.sig", 8, 8},
		{"empty value floors at one", "", 8, 1},
		{"zero cap uses default", strings.Repeat("x", 20), 0, DefaultFullMaskLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FullMask(tt.value, tt.maxLen)
			if len(got) != tt.wantLen {
				t.Errorf("FullMask(%q, %d) length = %d, want %d", tt.value, tt.maxLen, len(got), tt.wantLen)
			}
			if strings.Trim(got, "*") != "" {
				t.Errorf("FullMask output %q contains non-mask characters", got)
			}
		})
	}
}

func TestPartialMaskPreservesHeadAndTail(t *testing.T) {
	value := "my secret api key"
	got := PartialMask(value, 0.6, 10)

	first := strings.Index(got, "*")
	last := strings.LastIndex(got, "*")
	if first == -1 {
		t.Fatalf("PartialMask(%q) = %q, no mask run", value, got)
	}

	head := got[:first]
	tail := got[last+1:]
	if !strings.HasPrefix(value, head) {
		t.Errorf("head %q is not a literal prefix of %q", head, value)
	}
	if !strings.HasSuffix(value, tail) {
		t.Errorf("tail %q is not a literal suffix of %q", tail, value)
	}
	if len(got) != len(value) {
		t.Errorf("partial mask changed length: %d != %d", len(got), len(value))
	}
}

func TestPartialMaskRunLength(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		percentage float64
		maxLen     int
		wantMasked int
	}{
		// round(10 * 0.6) = 6, head 2, tail 2
		{"percentage applied", "0123456789", 0.6, 10, 6},
		// round(20 * 0.6) = 12, capped at 10
		{"cap applied", strings.Repeat("a", 20), 0.6, 10, 10},
		// round(2 * 0.1) = 0, floored to 1
		{"floor of one", "ab", 0.1, 10, 1},
		{"full percentage masks everything", "abcd", 1.0, 10, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PartialMask(tt.value, tt.percentage, tt.maxLen)
			masked := strings.Count(got, "*")
			if masked != tt.wantMasked {
				t.Errorf("PartialMask(%q, %v, %d) = %q, mask run %d, want %d",
					tt.value, tt.percentage, tt.maxLen, got, masked, tt.wantMasked)
			}
		})
	}
}

func TestPartialMaskEmptyValue(t *testing.T) {
	if got := PartialMask("", 0.6, 10); got != "" {
		t.Errorf("PartialMask(\"\") = %q, want empty", got)
	}
}

func TestPatternMask(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		pattern string
		want    string
	}{
		{"email username", "john.doe@example.com", "{username}@***", "john.doe@***"},
		{"username without at-sign", "plainvalue", "{username}@***", "plainvalue@***"},
		{"card last4", "4111111111111111", "****-{last4}", "****-1111"},
		{"last4 of short value", "123", "****-{last4}", "****-123"},
		{"verbatim value", "hello", "<{value}>", "<hello>"},
		{"unknown placeholder stays literal", "x", "{unknown}-{last4}", "{unknown}-x"},
		{"empty pattern uses default", "secret", "", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PatternMask(tt.value, tt.pattern); got != tt.want {
				t.Errorf("PatternMask(%q, %q) = %q, want %q", tt.value, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestStrategiesAreDeterministic(t *testing.T) {
	value := "deterministic-input"
	if FullMask(value, 8) != FullMask(value, 8) {
		t.Error("FullMask is not deterministic")
	}
	if PartialMask(value, 0.6, 10) != PartialMask(value, 0.6, 10) {
		t.Error("PartialMask is not deterministic")
	}
	if PatternMask(value, "****-{last4}") != PatternMask(value, "****-{last4}") {
		t.Error("PatternMask is not deterministic")
	}
}

func TestRuleApplyUnsupportedType(t *testing.T) {
	rule := Rule{Path: "a", MaskType: MaskType("rot13")}
	if _, err := rule.Apply("value"); err == nil {
		t.Error("Expected error for unsupported mask type")
	}
}

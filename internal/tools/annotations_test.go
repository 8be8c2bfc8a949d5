package tools

import (
	"testing"
)

func TestMaskingAnnotations(t *testing.T) {
	a := MaskingAnnotations("Mask Response")

	if a.Title != "Mask Response" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.ReadOnlyHint {
		t.Error("Masking writes mappings, must not be read-only")
	}
	if a.DestructiveHint == nil || *a.DestructiveHint {
		t.Error("Masking is not destructive")
	}
	if !a.IdempotentHint {
		t.Error("Re-masking overwrites, should be idempotent")
	}
}

func TestRecoveryAnnotations(t *testing.T) {
	a := RecoveryAnnotations("Recover Parameters")

	if !a.ReadOnlyHint {
		t.Error("Recovery only reads mappings")
	}
	if !a.IdempotentHint {
		t.Error("Recovery should be idempotent")
	}
}

func TestCleanupAnnotations(t *testing.T) {
	a := CleanupAnnotations("Cleanup Conversation")

	if a.DestructiveHint == nil || !*a.DestructiveHint {
		t.Error("Cleanup deletes mappings, must be destructive")
	}
	if !a.IdempotentHint {
		t.Error("Cleanup is idempotent")
	}
}

func TestDefaultAnnotations(t *testing.T) {
	a := DefaultAnnotations("Tool")

	if a.Title != "Tool" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.OpenWorldHint == nil || *a.OpenWorldHint {
		t.Error("OpenWorldHint should default to false")
	}
}

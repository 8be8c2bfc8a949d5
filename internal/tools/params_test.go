package tools

import (
	"testing"
)

func TestGetStringParam(t *testing.T) {
	args := map[string]interface{}{
		"name":    "value",
		"numeric": float64(42),
		"wrong":   []interface{}{},
	}

	if v, err := GetStringParam(args, "name", true); err != nil || v != "value" {
		t.Errorf("GetStringParam(name) = %q, %v", v, err)
	}
	if v, err := GetStringParam(args, "numeric", true); err != nil || v != "42" {
		t.Errorf("GetStringParam(numeric) = %q, %v", v, err)
	}
	if _, err := GetStringParam(args, "missing", true); err == nil {
		t.Error("Expected error for missing required param")
	}
	if v, err := GetStringParam(args, "missing", false); err != nil || v != "" {
		t.Errorf("Optional missing param should be empty, got %q, %v", v, err)
	}
	if _, err := GetStringParam(args, "wrong", true); err == nil {
		t.Error("Expected error for wrong type")
	}
}

func TestGetObjectParam(t *testing.T) {
	args := map[string]interface{}{
		"obj":   map[string]interface{}{"k": "v"},
		"wrong": "string",
	}

	obj, err := GetObjectParam(args, "obj", true)
	if err != nil || obj["k"] != "v" {
		t.Errorf("GetObjectParam(obj) = %v, %v", obj, err)
	}
	if _, err := GetObjectParam(args, "missing", true); err == nil {
		t.Error("Expected error for missing required param")
	}
	if obj, err := GetObjectParam(args, "missing", false); err != nil || obj != nil {
		t.Errorf("Optional missing param should be nil, got %v, %v", obj, err)
	}
	if _, err := GetObjectParam(args, "wrong", true); err == nil {
		t.Error("Expected error for wrong type")
	}
}

func TestGetArrayParam(t *testing.T) {
	args := map[string]interface{}{
		"arr":   []interface{}{"a", "b"},
		"wrong": "string",
	}

	arr, err := GetArrayParam(args, "arr", true)
	if err != nil || len(arr) != 2 {
		t.Errorf("GetArrayParam(arr) = %v, %v", arr, err)
	}
	if _, err := GetArrayParam(args, "missing", true); err == nil {
		t.Error("Expected error for missing required param")
	}
	if _, err := GetArrayParam(args, "wrong", true); err == nil {
		t.Error("Expected error for wrong type")
	}
}

func TestGetBoolParam(t *testing.T) {
	args := map[string]interface{}{
		"flag":   true,
		"text":   "true",
		"number": float64(1),
	}

	if v, err := GetBoolParam(args, "flag", true); err != nil || !v {
		t.Errorf("GetBoolParam(flag) = %v, %v", v, err)
	}
	if v, err := GetBoolParam(args, "text", true); err != nil || !v {
		t.Errorf("GetBoolParam(text) = %v, %v", v, err)
	}
	if _, err := GetBoolParam(args, "number", true); err == nil {
		t.Error("Expected error for numeric bool")
	}
	if v, err := GetBoolParam(args, "missing", false); err != nil || v {
		t.Errorf("Optional missing param should be false, got %v, %v", v, err)
	}
}

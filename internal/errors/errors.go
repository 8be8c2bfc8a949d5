// Package errors provides structured errors for the masking engine and
// its MCP surface.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors usable with errors.Is across package boundaries.
var (
	// ErrNotFound is returned by store lookups when a key is absent.
	// Recovery treats it as the normal "no mapping" outcome, never as a fault.
	ErrNotFound = errors.New("mapping not found")
)

// Category classifies the type of error
type Category string

const (
	// ClientError indicates the error was caused by the caller (bad rule, bad input)
	ClientError Category = "CLIENT_ERROR"
	// ServerError indicates the error originated inside the engine
	ServerError Category = "SERVER_ERROR"
	// ExternalError indicates the error was caused by the store collaborator
	ExternalError Category = "EXTERNAL_ERROR"
)

// Code represents a structured error code
type Code string

const (
	// Client errors
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeInvalidRule  Code = "INVALID_RULE"
	CodeInvalidPath  Code = "INVALID_PATH"

	// Server errors
	CodeInternalError Code = "INTERNAL_ERROR"

	// External errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeMappingNotFound  Code = "MAPPING_NOT_FOUND"
)

// StructuredError carries a code, category, and recovery suggestion alongside
// the message. Tool handlers serialize it for the MCP client; the pipelines
// log it and continue (masking and recovery are best-effort by design).
type StructuredError struct {
	Code       Code        `json:"code"`
	Category   Category    `json:"category"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`

	wrapped error
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As
func (e *StructuredError) Unwrap() error {
	return e.wrapped
}

// ToJSON converts the error to a JSON string
func (e *StructuredError) ToJSON() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","category":"%s","message":"%s"}`, e.Code, e.Category, e.Message)
	}
	return string(bytes)
}

// New creates a new structured error
func New(code Code, category Category, message string) *StructuredError {
	return &StructuredError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// WithDetails adds details to the error
func (e *StructuredError) WithDetails(details interface{}) *StructuredError {
	e.Details = details
	return e
}

// WithSuggestion adds a recovery suggestion to the error
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// WithCause attaches the underlying error
func (e *StructuredError) WithCause(err error) *StructuredError {
	e.wrapped = err
	return e
}

// Common error constructors

// NewInvalidInput creates an invalid input error
func NewInvalidInput(message string) *StructuredError {
	return New(CodeInvalidInput, ClientError, message).
		WithSuggestion("Check the input parameters and try again")
}

// NewInvalidRule creates an error for a malformed masking rule.
// The masking pipeline logs it and skips the rule; other rules still apply.
func NewInvalidRule(index int, message string) *StructuredError {
	return New(CodeInvalidRule, ClientError, fmt.Sprintf("sensitive field rule %d is invalid: %s", index, message)).
		WithDetails(map[string]interface{}{"rule_index": index}).
		WithSuggestion("Fix the rule in the tool's sensitive_fields configuration")
}

// NewInvalidPath creates an error for an unparseable field path
func NewInvalidPath(path string, cause error) *StructuredError {
	return New(CodeInvalidPath, ClientError, fmt.Sprintf("cannot parse field path %q: %v", path, cause)).
		WithCause(cause).
		WithSuggestion("Paths use dotted notation with optional [N] indices and [*] wildcards, e.g. data.keys[*].secret")
}

// NewStoreUnavailable creates an error for a failed store operation.
// On the masking side this is fatal for the affected field (fail closed);
// on the recovery side the candidate value is left as-is (fail safe).
func NewStoreUnavailable(op string, cause error) *StructuredError {
	return New(CodeStoreUnavailable, ExternalError, fmt.Sprintf("store operation %q failed: %v", op, cause)).
		WithCause(cause).
		WithSuggestion("Check store connectivity and the STORE_TIMEOUT setting")
}

// NewMappingNotFound creates a not-found error for a masking mapping lookup
func NewMappingNotFound(identifier string) *StructuredError {
	return New(CodeMappingNotFound, ExternalError, fmt.Sprintf("no mapping stored for identifier %q", identifier)).
		WithCause(ErrNotFound).
		WithSuggestion("The mapping may have expired or belongs to a different conversation")
}

// NewInternalError creates an internal engine error
func NewInternalError(message string) *StructuredError {
	return New(CodeInternalError, ServerError, message).
		WithSuggestion("Try again later or report the issue if it persists")
}

// IsNotFound reports whether err is a missing-mapping condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

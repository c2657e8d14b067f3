package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: no_candidates, transport_error, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any error sharing the same code, so copies made by
// WithMessage/WithCause/WithDetails still satisfy errors.Is against
// the predefined sentinel.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Matching errors
	ErrNoCandidates = &ExecutionError{
		Category: ErrCategoryMatching,
		Code:     "no_candidates",
		Message:  "no candidate elements found for locator",
	}
	ErrNoValidMatch = &ExecutionError{
		Category: ErrCategoryMatching,
		Code:     "no_valid_match",
		Message:  "candidates found but none scored above the confidence threshold",
	}
	ErrAmbiguousMatch = &ExecutionError{
		Category: ErrCategoryMatching,
		Code:     "ambiguous_match",
		Message:  "multiple candidates matched with indistinguishable scores",
	}
	ErrOppositeState = &ExecutionError{
		Category: ErrCategoryMatching,
		Code:     "opposite_state",
		Message:  "element appears to be in the opposite state already",
	}

	// Input errors
	ErrBoundsParse = &ExecutionError{
		Category: ErrCategoryInput,
		Code:     "bounds_parse_error",
		Message:  "malformed bounds string",
	}
	ErrInvalidFingerprint = &ExecutionError{
		Category: ErrCategoryInput,
		Code:     "invalid_fingerprint",
		Message:  "fingerprint has no usable anchor attributes",
	}
	ErrInvalidLocator = &ExecutionError{
		Category: ErrCategoryInput,
		Code:     "invalid_locator",
		Message:  "locator expression is malformed",
	}

	// Normalization errors
	ErrNoScrollContainer = &ExecutionError{
		Category: ErrCategoryNormalize,
		Code:     "no_scroll_container",
		Message:  "no scrollable container found above the element",
	}
	ErrNoCardRoot = &ExecutionError{
		Category: ErrCategoryNormalize,
		Code:     "no_card_root",
		Message:  "no card root container found for the element",
	}
	ErrNodeNotFound = &ExecutionError{
		Category: ErrCategoryNormalize,
		Code:     "node_not_found",
		Message:  "no node in the tree corresponds to the given bounds",
	}

	// Transport errors
	ErrTransport = &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     "transport_error",
		Message:  "device transport operation failed",
	}
	ErrHierarchyParse = &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     "hierarchy_parse_error",
		Message:  "could not parse the UI hierarchy dump",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

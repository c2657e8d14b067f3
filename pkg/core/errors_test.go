package core

import (
	"errors"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Category: ErrCategoryMatching,
		Code:     "test_error",
		Message:  "test message",
	}

	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

func TestExecutionError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Category: ErrCategoryMatching,
		Code:     "test_error",
		Message:  "test message",
		Cause:    cause,
	}

	got := err.Error()
	if !strings.Contains(got, "test message") {
		t.Errorf("Error() = %q, should contain 'test message'", got)
	}
	if !strings.Contains(got, "underlying error") {
		t.Errorf("Error() = %q, should contain 'underlying error'", got)
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := ErrNoCandidates.WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestExecutionError_IsMatchesByCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target *ExecutionError
		want   bool
	}{
		{
			name:   "sentinel matches itself",
			err:    ErrNoValidMatch,
			target: ErrNoValidMatch,
			want:   true,
		},
		{
			name:   "copy with message matches sentinel",
			err:    ErrNoValidMatch.WithMessage("best score 0.21 below threshold"),
			target: ErrNoValidMatch,
			want:   true,
		},
		{
			name:   "copy with details matches sentinel",
			err:    ErrInvalidFingerprint.WithDetails(map[string]interface{}{"field": "text"}),
			target: ErrInvalidFingerprint,
			want:   true,
		},
		{
			name:   "different code does not match",
			err:    ErrNoCandidates,
			target: ErrNoValidMatch,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecutionError_WithDetails(t *testing.T) {
	base := ErrNoValidMatch.WithDetails(map[string]interface{}{"best_score": 0.21})
	extended := base.WithDetails(map[string]interface{}{"candidates": 3})

	if base.Details["candidates"] != nil {
		t.Error("WithDetails should not mutate the receiver")
	}
	if extended.Details["best_score"] != 0.21 {
		t.Errorf("extended error lost original detail: %v", extended.Details)
	}
	if extended.Details["candidates"] != 3 {
		t.Errorf("extended error missing new detail: %v", extended.Details)
	}
}

func TestExecutionError_CopiesPreserveCategory(t *testing.T) {
	err := ErrNoScrollContainer.WithMessage("nothing scrollable above [0,0][10,10]")
	if err.Category != ErrCategoryNormalize {
		t.Errorf("Category = %v, want %v", err.Category, ErrCategoryNormalize)
	}
	if err.Code != "no_scroll_container" {
		t.Errorf("Code = %q, want no_scroll_container", err.Code)
	}
}

func TestNewExecutionError(t *testing.T) {
	err := NewExecutionError(ErrCategoryTransport, "dump_truncated", "hierarchy dump was truncated")
	if err.Category != ErrCategoryTransport || err.Code != "dump_truncated" {
		t.Errorf("unexpected error: %+v", err)
	}
	if err.Error() != "hierarchy dump was truncated" {
		t.Errorf("Error() = %q", err.Error())
	}
}

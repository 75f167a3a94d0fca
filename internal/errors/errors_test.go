package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestStoreError_Error(t *testing.T) {
	err := New(ErrCategoryConfiguration, CodeArityMismatch, "2 predicates need 1 operator")
	expected := "[CONFIGURATION:ARITY_MISMATCH] 2 predicates need 1 operator"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestStoreError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("disk I/O error")
	err := Wrap(ErrCategoryStorage, CodeEngineFailure, "insert triple", cause)
	expected := "[STORAGE:ENGINE_FAILURE] insert triple: disk I/O error"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryStorage, CodeBusy, "locked", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestStoreError_Is(t *testing.T) {
	err1 := NewProtocolViolation(CodeNestedTransaction, "first")
	err2 := NewProtocolViolation(CodeNestedTransaction, "second")
	err3 := NewProtocolViolation(CodeNoTransaction, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
	if !errors.Is(fmt.Errorf("begin: %w", err1), ErrNestedTransaction) {
		t.Error("wrapped error should match the sentinel")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeBusy, true},
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeEngineFailure, false},
		{ErrCategoryStorage, CodeCorruption, false},
		{ErrCategoryConfiguration, CodeInvalidParameter, false},
		{ErrCategoryProtocol, CodeMissingKey, false},
		{ErrCategoryNotReady, CodeStoreClosed, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := fmt.Errorf("search: %w", NewConfigurationError(CodeInvalidParameter, "limit < 0"))
	if GetCategory(err) != ErrCategoryConfiguration {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryConfiguration)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-StoreError should return empty category")
	}
	if !IsCategory(err, ErrCategoryConfiguration) {
		t.Error("IsCategory should see through wrapping")
	}
}

func TestGetCode(t *testing.T) {
	err := NewNotReadyError(CodeStoreClosed, "closed")
	if GetCode(err) != CodeStoreClosed {
		t.Errorf("got %q, want %q", GetCode(err), CodeStoreClosed)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-StoreError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewConfigurationError(CodeUnsupportedType, "unsupported")
	detailed := err.WithDetails(map[string]interface{}{"type": "chan int"})

	if detailed.Details["type"] != "chan int" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	c := NewConfigurationError(CodeArityMismatch, "bad expression")
	if c.Category != ErrCategoryConfiguration || c.Code != CodeArityMismatch {
		t.Error("NewConfigurationError mismatch")
	}

	p := NewProtocolViolation(CodeMissingKey, "no key")
	if p.Category != ErrCategoryProtocol {
		t.Error("NewProtocolViolation mismatch")
	}

	s := NewStorageError(CodeEngineFailure, "exec", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	n := NewNotReadyError(CodeNotAttached, "bag not attached")
	if n.Category != ErrCategoryNotReady {
		t.Error("NewNotReadyError mismatch")
	}
}

// Package errors provides structured error types for the document store.
// Every error carries a category, a code, a message and a retryable flag so
// callers can branch on the taxonomy instead of matching strings.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the kind of failure.
type ErrorCategory string

const (
	// ErrCategoryConfiguration covers invalid or missing parameters detected
	// before any persisted state is touched.
	ErrCategoryConfiguration ErrorCategory = "CONFIGURATION"
	// ErrCategoryProtocol covers callers that break the document or
	// transaction protocol.
	ErrCategoryProtocol ErrorCategory = "PROTOCOL"
	// ErrCategoryStorage wraps failures reported by the storage engine.
	ErrCategoryStorage ErrorCategory = "STORAGE"
	// ErrCategoryNotReady is returned by operations on a closed or
	// not-yet-opened store.
	ErrCategoryNotReady ErrorCategory = "NOT_READY"
)

// Error codes for each category.
const (
	// Configuration codes
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeArityMismatch    = "ARITY_MISMATCH"
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"
	CodeNonConforming    = "NON_CONFORMING"
	CodeInvalidKeyPath   = "INVALID_KEY_PATH"

	// Protocol codes
	CodeMissingKey        = "MISSING_KEY"
	CodeNestedTransaction = "NESTED_TRANSACTION"
	CodeNoTransaction     = "NO_TRANSACTION"
	CodeTransactionOpen   = "TRANSACTION_OPEN"

	// Storage codes
	CodeEngineFailure  = "ENGINE_FAILURE"
	CodeBusy           = "BUSY"
	CodeCorruption     = "CORRUPTION"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"

	// Not-ready codes
	CodeStoreClosed = "STORE_CLOSED"
	CodeNotAttached = "NOT_ATTACHED"
)

// StoreError is the structured error type used throughout the store.
type StoreError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StoreError.
func New(category ErrorCategory, code, message string) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new StoreError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *StoreError) WithDetails(details map[string]interface{}) *StoreError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCategory(err error) ErrorCategory {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCode(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCategory reports whether err (or its chain) belongs to category.
func IsCategory(err error, category ErrorCategory) bool {
	return GetCategory(err) == category
}

// isRetryable reports the codes a caller may retry as a whole operation.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeBusy:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewConfigurationError(code, message string) *StoreError {
	return New(ErrCategoryConfiguration, code, message)
}

func NewProtocolViolation(code, message string) *StoreError {
	return New(ErrCategoryProtocol, code, message)
}

func NewStorageError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewNotReadyError(code, message string) *StoreError {
	return New(ErrCategoryNotReady, code, message)
}

// Sentinels for errors.Is checks; only category and code are compared.
var (
	ErrUnsupportedType   = New(ErrCategoryConfiguration, CodeUnsupportedType, "unsupported type")
	ErrArityMismatch     = New(ErrCategoryConfiguration, CodeArityMismatch, "arity mismatch")
	ErrNestedTransaction = New(ErrCategoryProtocol, CodeNestedTransaction, "transaction already open")
	ErrTransactionOpen   = New(ErrCategoryProtocol, CodeTransactionOpen, "transaction is open")
	ErrStoreClosed       = New(ErrCategoryNotReady, CodeStoreClosed, "store is closed")
)

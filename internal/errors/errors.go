// Package errors provides structured error types for kite.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryPartition  ErrorCategory = "PARTITION"
	ErrCategoryAccess     ErrorCategory = "ACCESS"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryManifest   ErrorCategory = "MANIFEST"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidConfig    = "INVALID_CONFIG"
	CodeInvalidTransform = "INVALID_TRANSFORM"
	CodeEmptyStrategy    = "EMPTY_STRATEGY"

	// Partition codes
	CodeTypeMismatch        = "TYPE_MISMATCH"
	CodeOutOfDomain         = "OUT_OF_DOMAIN"
	CodeCardinalityOverflow = "CARDINALITY_OVERFLOW"
	CodeIndexOutOfRange     = "INDEX_OUT_OF_RANGE"
	CodePathCollision       = "PATH_COLLISION"

	// Access codes
	CodeFieldNotFound = "FIELD_NOT_FOUND"
	CodeAccessDenied  = "ACCESS_DENIED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeListFailed     = "LIST_FAILED"

	// Manifest codes
	CodeRegisterFailed   = "REGISTER_FAILED"
	CodeQueryFailed      = "QUERY_FAILED"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodeStrategyMismatch = "STRATEGY_MISMATCH"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
	CodeClosed     = "CLOSED"
)

// KiteError is the structured error type used throughout the system.
type KiteError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *KiteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *KiteError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *KiteError) Is(target error) bool {
	var t *KiteError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new KiteError.
func New(category ErrorCategory, code, message string) *KiteError {
	return &KiteError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new KiteError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *KiteError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new KiteError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *KiteError {
	return &KiteError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details merged in.
func (e *KiteError) WithDetails(details map[string]interface{}) *KiteError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ke *KiteError
	if errors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a KiteError.
func GetCategory(err error) ErrorCategory {
	var ke *KiteError
	if errors.As(err, &ke) {
		return ke.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a KiteError.
func GetCode(err error) string {
	var ke *KiteError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// GetDetail walks the error chain and returns the first detail stored under key.
func GetDetail(err error, key string) (interface{}, bool) {
	for err != nil {
		if ke, ok := err.(*KiteError); ok {
			if v, ok := ke.Details[key]; ok {
				return v, true
			}
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

// isRetryable determines if an error code is retryable. Only transient
// storage failures qualify; partition errors are deterministic.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *KiteError {
	return New(ErrCategoryValidation, code, message)
}

func NewPartitionError(code, message string) *KiteError {
	return New(ErrCategoryPartition, code, message)
}

func NewAccessError(code, message string, cause error) *KiteError {
	return Wrap(ErrCategoryAccess, code, message, cause)
}

func NewStorageError(code, message string, cause error) *KiteError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewManifestError(code, message string, cause error) *KiteError {
	return Wrap(ErrCategoryManifest, code, message, cause)
}

func NewInternalError(message string, cause error) *KiteError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Package errors provides structured error types for tsdemo.
// All errors include a category, code, message, and retryable flag so the
// orchestration layer can decide whether to abort, skip, or continue.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryDecode     ErrorCategory = "DECODE"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryIngest     ErrorCategory = "INGEST"
	ErrCategoryProvision  ErrorCategory = "PROVISION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Decode codes
	CodeMissingValue          = "MISSING_VALUE"
	CodeUnsupportedColumnType = "UNSUPPORTED_COLUMN_TYPE"
	CodeShapeMismatch         = "SHAPE_MISMATCH"
	CodeDepthExceeded         = "DEPTH_EXCEEDED"

	// Query codes
	CodeQueryFailed  = "QUERY_FAILED"
	CodeCancelFailed = "CANCEL_FAILED"
	CodeThrottled    = "THROTTLED"

	// Ingest codes
	CodeRejectedRecords = "REJECTED_RECORDS"
	CodeWriteFailed     = "WRITE_FAILED"
	CodeBatchTooLarge   = "BATCH_TOO_LARGE"

	// Provision codes
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
	CodeResourceExists   = "RESOURCE_EXISTS"
	CodeRequestFailed    = "REQUEST_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Validation codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details merged in.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
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
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetDetail returns a single detail value from the first *Error in the chain.
func GetDetail(err error, key string) (interface{}, bool) {
	var e *Error
	if errors.As(err, &e) && e.Details != nil {
		v, ok := e.Details[key]
		return v, ok
	}
	return nil, false
}

// isRetryable determines if an error code is retryable. Decode errors never
// are: the same bytes decode the same way on every attempt.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryQuery && code == CodeThrottled:
		return true
	case category == ErrCategoryIngest && code == CodeWriteFailed:
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

func NewDecodeError(code, message string) *Error {
	return New(ErrCategoryDecode, code, message)
}

func NewQueryError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewIngestError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryIngest, code, message, cause)
}

func NewProvisionError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryProvision, code, message, cause)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

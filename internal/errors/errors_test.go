package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := New(ErrCategoryDecode, CodeMissingValue, "scalar value absent")
	expected := "[DECODE:MISSING_VALUE] scalar value absent"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryQuery, CodeQueryFailed, "query failed", cause)
	expected := "[QUERY:QUERY_FAILED] query failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryIngest, CodeWriteFailed, "write", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(ErrCategoryDecode, CodeShapeMismatch, "first")
	err2 := New(ErrCategoryDecode, CodeShapeMismatch, "second")
	err3 := New(ErrCategoryDecode, CodeMissingValue, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}

	wrapped := Wrap(ErrCategoryQuery, CodeQueryFailed, "query", err1)
	if !errors.Is(wrapped, err2) {
		t.Error("Is should see decode errors through a query wrapper")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryDecode, CodeMissingValue, false},
		{ErrCategoryDecode, CodeUnsupportedColumnType, false},
		{ErrCategoryDecode, CodeShapeMismatch, false},
		{ErrCategoryDecode, CodeDepthExceeded, false},
		{ErrCategoryQuery, CodeThrottled, true},
		{ErrCategoryQuery, CodeQueryFailed, false},
		{ErrCategoryIngest, CodeWriteFailed, true},
		{ErrCategoryIngest, CodeRejectedRecords, false},
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryProvision, CodeResourceNotFound, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewDecodeError(CodeUnsupportedColumnType, "no variant")
	if GetCategory(err) != ErrCategoryDecode {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryDecode)
	}
	if GetCode(err) != CodeUnsupportedColumnType {
		t.Errorf("got %q, want %q", GetCode(err), CodeUnsupportedColumnType)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewDecodeError(CodeMissingValue, "absent").WithDetails(map[string]interface{}{"path": "col[0]"})
	detailed := err.WithDetails(map[string]interface{}{"query": "SELECT 1"})

	if detailed.Details["query"] != "SELECT 1" || detailed.Details["path"] != "col[0]" {
		t.Errorf("WithDetails should merge details, got %v", detailed.Details)
	}
	if _, ok := err.Details["query"]; ok {
		t.Error("WithDetails should not modify original")
	}

	v, ok := GetDetail(fmt.Errorf("outer: %w", detailed), "query")
	if !ok || v != "SELECT 1" {
		t.Errorf("GetDetail = %v, %v", v, ok)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	if e := NewQueryError(CodeQueryFailed, "q", cause); e.Category != ErrCategoryQuery || !errors.Is(e, cause) {
		t.Error("NewQueryError mismatch")
	}
	if e := NewIngestError(CodeRejectedRecords, "i", cause); e.Category != ErrCategoryIngest {
		t.Error("NewIngestError mismatch")
	}
	if e := NewProvisionError(CodeResourceExists, "p", cause); e.Category != ErrCategoryProvision {
		t.Error("NewProvisionError mismatch")
	}
	if e := NewStorageError(CodeUploadFailed, "s", cause); e.Category != ErrCategoryStorage {
		t.Error("NewStorageError mismatch")
	}
	if e := NewValidationError(CodeInvalidConfig, "v"); e.Category != ErrCategoryValidation {
		t.Error("NewValidationError mismatch")
	}
	if e := NewInternalError("x", cause); e.Category != ErrCategoryInternal || e.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}

// Package errors provides structured error types for Stratabench.
// Every error carries a category, code, message, and retryable flag so the
// benchmark runner can decide between retrying a trial, failing the trial,
// or aborting the run.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors by harness component.
type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategoryFormat     Category = "FORMAT"
	CategoryPlan       Category = "PLAN"
	CategoryExecution  Category = "EXECUTION"
	CategoryMetrics    Category = "METRICS"
	CategoryInternal   Category = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes. Fatal: surfaced immediately, never retried.
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"

	// Format codes. Fatal for the encoding's trials; other encodings
	// continue.
	CodeWriteFailed    = "WRITE_FAILED"
	CodeReadFailed     = "READ_FAILED"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"

	// Plan codes. PlanMismatch means an optimizer directive was not
	// honored in the physical plan; the trial is invalid by definition.
	CodePlanMismatch = "PLAN_MISMATCH"

	// Execution codes.
	CodeExecutionFailed = "EXECUTION_FAILED"
	CodeTrialTimeout    = "TRIAL_TIMEOUT"

	// Metrics codes.
	CodeAppendFailed = "APPEND_FAILED"

	// Internal codes.
	CodeUnexpected = "UNEXPECTED"
)

// BenchError is the structured error type used throughout the harness.
type BenchError struct {
	Category  Category
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *BenchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's category and code.
func (e *BenchError) Is(target error) bool {
	var t *BenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BenchError.
func New(category Category, code, message string) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new BenchError wrapping an existing error.
func Wrap(category Category, code, message string, cause error) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// IsRetryable reports whether an error (or its chain) is retryable.
// Only transient execution failures qualify; a retried trial that fails
// again is recorded as failed rather than retried further.
func IsRetryable(err error) bool {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// Code extracts the error code from an error chain. Returns CodeUnexpected
// for errors that are not BenchErrors, so every failed trial gets a kind.
func Code(err error) string {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeUnexpected
}

// isRetryable marks transient execution failures. Timeouts and plan
// mismatches are deliberate non-retries: a timeout already consumed its
// budget, and a mismatch is deterministic.
func isRetryable(category Category, code string) bool {
	return category == CategoryExecution && code == CodeExecutionFailed
}

// Convenience constructors for the taxonomy.

// NewInvalidConfiguration reports bad harness or generator parameters.
func NewInvalidConfiguration(message string) *BenchError {
	return New(CategoryValidation, CodeInvalidConfiguration, message)
}

// NewWriteError reports a storage write failure for an encoding.
func NewWriteError(message string, cause error) *BenchError {
	return Wrap(CategoryFormat, CodeWriteFailed, message, cause)
}

// NewReadError reports a storage read failure for an encoding.
func NewReadError(message string, cause error) *BenchError {
	return Wrap(CategoryFormat, CodeReadFailed, message, cause)
}

// NewPlanMismatch reports that an optimizer directive was not honored.
// The captured plan text travels in the message for diagnosis.
func NewPlanMismatch(message string) *BenchError {
	return New(CategoryPlan, CodePlanMismatch, message)
}

// NewExecutionFailure reports a transient engine error during a trial.
func NewExecutionFailure(message string, cause error) *BenchError {
	return Wrap(CategoryExecution, CodeExecutionFailed, message, cause)
}

// NewTimeout reports that a trial exceeded its time budget.
func NewTimeout(message string) *BenchError {
	return New(CategoryExecution, CodeTrialTimeout, message)
}

// NewInternal reports an unexpected harness error.
func NewInternal(message string, cause error) *BenchError {
	return Wrap(CategoryInternal, CodeUnexpected, message, cause)
}

package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies engine errors.
type ErrorCode string

// Validation error codes
const (
	ErrEmptyWorkflow      ErrorCode = "EMPTY_WORKFLOW"
	ErrDanglingDependency ErrorCode = "DANGLING_DEPENDENCY"
	ErrCycleDetected      ErrorCode = "CYCLE_DETECTED"
)

// State error codes
const (
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrNotValidated      ErrorCode = "NOT_VALIDATED"
	ErrGuardRejected     ErrorCode = "GUARD_REJECTED"
)

// Registry error codes
const (
	ErrWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrTaskNotFound     ErrorCode = "TASK_NOT_FOUND"
	ErrDuplicateTask    ErrorCode = "DUPLICATE_TASK"
)

// Execution error codes
const (
	ErrDependenciesUnmet ErrorCode = "DEPENDENCIES_UNMET"
	ErrExecutorRejected  ErrorCode = "EXECUTOR_REJECTED"
	ErrConditionFailed   ErrorCode = "CONDITION_FAILED"
	ErrTaskFailed        ErrorCode = "TASK_FAILED"
)

// Error is the structured error returned by engine operations.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// CodeOf extracts the ErrorCode from an error, or "" when it is not an
// engine error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// TaskError is one entry in a workflow's error list. The list, together with
// the audit trail, is the canonical record for diagnosing a failed or
// stalled workflow.
type TaskError struct {
	// TaskID identifies the failing task
	TaskID string `json:"task_id"`
	// Message is the failure message reported by the executor
	Message string `json:"message"`
	// Category classifies the failure (executor-defined, free text)
	Category string `json:"category"`
	// Attempt is the retry attempt that produced this failure
	Attempt int `json:"attempt"`
	// Timestamp is when the failure was recorded
	Timestamp time.Time `json:"timestamp"`
}

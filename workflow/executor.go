package workflow

import "context"

// TaskExecutor runs the domain-specific logic for a task kind. The engine
// hands over a Dispatch and returns immediately; the executor performs the
// work asynchronously and reports the outcome back through
// Engine.ReportResult (or the CompleteTask convenience wrapper).
//
// Execute returning an error means the dispatch was not accepted at all;
// the engine routes that through the failure policy like a reported
// failure.
type TaskExecutor interface {
	Execute(ctx context.Context, d Dispatch) error
}

// Compensator is an optional hook on a TaskExecutor. Under the rollback
// strategy the engine invokes Compensate for each completed task in reverse
// completion order to unwind its side effects. The engine does not inspect
// the outcome beyond recording it in the audit trail.
type Compensator interface {
	Compensate(ctx context.Context, d Dispatch) error
}

// ExecutorFunc adapts a function to the TaskExecutor interface.
type ExecutorFunc func(ctx context.Context, d Dispatch) error

// Execute implements TaskExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, d Dispatch) error {
	return f(ctx, d)
}

// Result is a task outcome reported by an executor.
type Result struct {
	// TaskID identifies the task the outcome belongs to
	TaskID string
	// Success reports whether the task completed
	Success bool
	// Results are merged into the workflow context on success
	Results map[string]any
	// Message describes the failure; ignored on success
	Message string
	// Category classifies the failure (executor-defined)
	Category string
}

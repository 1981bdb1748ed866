package workflow

import (
	"time"
)

// TaskStatus represents the runtime status of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been dispatched yet
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusWaiting indicates the task is blocked on unmet dependencies
	TaskStatusWaiting TaskStatus = "waiting"
	// TaskStatusRunning indicates the task has been dispatched to an executor
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task was skipped by its condition
	TaskStatusSkipped TaskStatus = "skipped"
	// TaskStatusCancelled indicates the task was cancelled with the workflow
	TaskStatusCancelled TaskStatus = "cancelled"
)

// terminal reports whether the status is final for dependency resolution.
// A dependency is satisfied only by completed or skipped, but failed and
// cancelled tasks are also never dispatched again.
func (s TaskStatus) terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped, TaskStatusCancelled:
		return true
	}
	return false
}

// satisfiesDependency reports whether a dependency in this status unblocks
// its dependents.
func (s TaskStatus) satisfiesDependency() bool {
	return s == TaskStatusCompleted || s == TaskStatusSkipped
}

// Task is a named unit of work inside a workflow. The engine decides when a
// task may run; what it computes is delegated to the TaskExecutor for its
// Kind.
type Task struct {
	// ID is the unique task identifier
	ID string
	// Name is the human-readable task name
	Name string
	// Kind selects the executor-side handler; opaque to the engine
	Kind string
	// Priority orders the ready set; higher dispatches first
	Priority int
	// Status is the current runtime status
	Status TaskStatus
	// DependsOn lists the IDs of tasks that must resolve first
	DependsOn []string
	// RetryCount is the number of retries consumed so far
	RetryCount int
	// MaxRetries caps RetryCount under the retry strategy
	MaxRetries int
	// AllowFailure lets this task fail without aborting the workflow
	AllowFailure bool
	// Condition, when set, is evaluated against the context at dispatch time
	Condition ConditionFunc
	// SkipOnCondition skips the task (instead of dispatching) when the
	// condition evaluates false
	SkipOnCondition bool
	// ConditionResult records the last condition evaluation, if any
	ConditionResult *bool
	// Params are the opaque input parameters handed to the executor
	Params map[string]any
	// Results are the opaque outputs reported by the executor
	Results map[string]any
	// CreatedAt is when the task was added to the workflow
	CreatedAt time.Time
	// StartedAt is when the task was last dispatched
	StartedAt time.Time
	// FinishedAt is when the task reached a terminal status
	FinishedAt time.Time

	// seq preserves insertion order for stable scheduling
	seq int
}

// clone returns a deep-enough copy for read-only callers. Params and Results
// maps are copied; the condition closure is shared.
func (t *Task) clone() *Task {
	cp := *t
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	if t.ConditionResult != nil {
		v := *t.ConditionResult
		cp.ConditionResult = &v
	}
	cp.Params = copyMap(t.Params)
	cp.Results = copyMap(t.Results)
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Dispatch is the unit of work handed to a TaskExecutor. It carries the
// task's inputs plus a snapshot of the shared context at dispatch time.
type Dispatch struct {
	// WorkflowID identifies the owning workflow
	WorkflowID string
	// TaskID identifies the dispatched task
	TaskID string
	// Name is the task name
	Name string
	// Kind selects the handler on the executor side
	Kind string
	// Attempt is 0 for the first dispatch, incremented per retry
	Attempt int
	// Params are the task's input parameters
	Params map[string]any
	// Context is a snapshot of the workflow context at dispatch time
	Context map[string]any
}

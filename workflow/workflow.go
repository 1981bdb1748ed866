package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionMode selects how many ready tasks may run at once.
type ExecutionMode string

const (
	// ModeSequential dispatches at most one task at a time
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel dispatches ready tasks up to MaxParallelTasks
	ModeParallel ExecutionMode = "parallel"
)

// ErrorStrategy selects how a reported task failure is handled.
type ErrorStrategy string

const (
	// StrategyRetry re-dispatches a failed task until its retry cap
	StrategyRetry ErrorStrategy = "retry"
	// StrategyContinue marks the task failed and keeps scheduling others
	StrategyContinue ErrorStrategy = "continue"
	// StrategyAbort fails the workflow on the first task failure
	StrategyAbort ErrorStrategy = "abort"
	// StrategyRollback aborts and additionally compensates completed tasks
	StrategyRollback ErrorStrategy = "rollback"
)

// Workflow is one orchestration instance. It exclusively owns its tasks,
// dependency edges, context, and audit trail; every mutation is funneled
// through the engine under the workflow's lock.
type Workflow struct {
	mu sync.Mutex

	id          string
	name        string
	description string

	state    State
	mode     ExecutionMode
	strategy ErrorStrategy

	// maxParallel caps concurrently running tasks in parallel mode
	maxParallel int
	// timeout is advisory metadata consulted by callers and executors;
	// the engine does not enforce a scheduling deadline from it
	timeout time.Duration

	tasks     map[string]*Task
	taskOrder []string
	graph     *depGraph

	ctx   *sharedContext
	audit *auditTrail

	errors []TaskError
	guards []TransitionGuard

	// dependenciesResolved is set by a successful validation; adding a task
	// or edge clears it
	dependenciesResolved bool

	// running counts currently dispatched tasks
	running int

	// stalled is set when a drain with unresolved tasks has been recorded;
	// reset on the next dispatch
	stalled bool

	// completionOrder records task IDs in completion order for rollback
	completionOrder []string

	createdAt time.Time
}

// Definition declares a workflow to be created. Tasks and dependencies may
// be declared inline or added later while the workflow is in draft.
type Definition struct {
	Name            string           `json:"name" yaml:"name"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	Mode            ExecutionMode    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Strategy        ErrorStrategy    `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	MaxParallel     int              `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
	Timeout         time.Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Tasks           []TaskDefinition `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// TaskDefinition declares one task inside a Definition.
type TaskDefinition struct {
	ID              string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name            string         `json:"name" yaml:"name"`
	Kind            string         `json:"kind" yaml:"kind"`
	Priority        int            `json:"priority,omitempty" yaml:"priority,omitempty"`
	DependsOn       []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	MaxRetries      int            `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	AllowFailure    bool           `json:"allow_failure,omitempty" yaml:"allow_failure,omitempty"`
	SkipOnCondition bool           `json:"skip_on_condition,omitempty" yaml:"skip_on_condition,omitempty"`
	Params          map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// ID returns the workflow identifier.
func (w *Workflow) ID() string { return w.id }

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Description returns the workflow description.
func (w *Workflow) Description() string { return w.description }

// State returns the current lifecycle state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Mode returns the execution mode.
func (w *Workflow) Mode() ExecutionMode { return w.mode }

// Strategy returns the error-handling strategy.
func (w *Workflow) Strategy() ErrorStrategy { return w.strategy }

// MaxParallel returns the parallel-task cap.
func (w *Workflow) MaxParallel() int { return w.maxParallel }

// Timeout returns the advisory workflow timeout.
func (w *Workflow) Timeout() time.Duration { return w.timeout }

// Task returns a copy of the task with the given ID.
func (w *Workflow) Task(taskID string) (*Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// Tasks returns copies of all tasks in insertion order.
func (w *Workflow) Tasks() []*Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Task, 0, len(w.taskOrder))
	for _, id := range w.taskOrder {
		out = append(out, w.tasks[id].clone())
	}
	return out
}

// Running returns the number of currently dispatched tasks.
func (w *Workflow) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Errors returns a copy of the workflow error list in record order.
func (w *Workflow) Errors() []TaskError {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]TaskError, len(w.errors))
	copy(out, w.errors)
	return out
}

// ContextValue returns the context value for a key.
func (w *Workflow) ContextValue(key string) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx.get(key)
}

// ContextSnapshot returns a copy of the shared context map.
func (w *Workflow) ContextSnapshot() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx.snapshot()
}

// AuditTrail returns a copy of the audit trail in append order.
func (w *Workflow) AuditTrail() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.audit.snapshot()
}

// AuditByTask returns the audit events for one task.
func (w *Workflow) AuditByTask(taskID string) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.audit.byTask(taskID)
}

// AuditByType returns the audit events of one type.
func (w *Workflow) AuditByType(typ EventType) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.audit.byType(typ)
}

// transition applies from->to after checking the transition table and every
// registered guard. Must be called with w.mu held.
func (w *Workflow) transition(to State) error {
	from := w.state
	if !canTransition(from, to) {
		return NewError(ErrInvalidTransition, "workflow %s: illegal transition %s -> %s", w.id, from, to)
	}
	for _, guard := range w.guards {
		if err := guard(w, from, to); err != nil {
			return err
		}
	}
	w.state = to
	return nil
}

// dependenciesMet reports whether every dependency of the task is completed
// or skipped. Must be called with w.mu held.
func (w *Workflow) dependenciesMet(t *Task) bool {
	for _, dep := range w.graph.dependenciesOf(t.ID) {
		depTask, ok := w.tasks[dep]
		if !ok || !depTask.Status.satisfiesDependency() {
			return false
		}
	}
	return true
}

// allTasksResolved reports whether every task is completed or skipped.
// Must be called with w.mu held.
func (w *Workflow) allTasksResolved() bool {
	for _, t := range w.tasks {
		if !t.Status.satisfiesDependency() {
			return false
		}
	}
	return true
}

func newWorkflow(def Definition, clock func() time.Time, guards []TransitionGuard) *Workflow {
	mode := def.Mode
	if mode == "" {
		mode = ModeSequential
	}
	strategy := def.Strategy
	if strategy == "" {
		strategy = StrategyAbort
	}
	maxParallel := def.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Workflow{
		id:          uuid.NewString(),
		name:        def.Name,
		description: def.Description,
		state:       StateDraft,
		mode:        mode,
		strategy:    strategy,
		maxParallel: maxParallel,
		timeout:     def.Timeout,
		tasks:       make(map[string]*Task),
		graph:       newDepGraph(),
		ctx:         newSharedContext(),
		audit:       newAuditTrail(clock),
		guards:      append([]TransitionGuard{requireValidated}, guards...),
		createdAt:   clock(),
	}
}

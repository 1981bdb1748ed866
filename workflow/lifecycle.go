package workflow

// State represents the lifecycle state of a workflow.
type State string

const (
	// StateDraft is the initial state; topology may still change
	StateDraft State = "draft"
	// StateValidating indicates validation is in progress
	StateValidating State = "validating"
	// StateReady indicates the graph validated acyclic and resolvable
	StateReady State = "ready"
	// StateRunning indicates the scheduler is dispatching tasks
	StateRunning State = "running"
	// StatePaused indicates dispatching is suspended
	StatePaused State = "paused"
	// StateCompleted indicates all tasks completed or skipped (terminal)
	StateCompleted State = "completed"
	// StateFailed indicates the error policy was exhausted (terminal)
	StateFailed State = "failed"
	// StateCancelled indicates the workflow was cancelled (terminal)
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// transitions is the single source of truth for legal lifecycle moves.
// Cancellation from any non-terminal state is handled as a row entry so
// illegal transitions cannot be reached from scattered call sites.
var transitions = map[State][]State{
	StateDraft:      {StateValidating, StateRunning, StateCancelled},
	StateValidating: {StateReady, StateDraft, StateCancelled},
	StateReady:      {StateValidating, StateRunning, StateCancelled},
	StateRunning:    {StatePaused, StateCompleted, StateFailed, StateCancelled},
	// Completions are still accepted while paused, so an exhausted failure
	// policy can fail a paused workflow too.
	StatePaused: {StateRunning, StateFailed, StateCancelled},
}

// canTransition reports whether from -> to is allowed by the table.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionGuard is a pluggable predicate evaluated before a lifecycle
// transition is applied. Returning an error vetoes the transition; the
// workflow state is left unchanged. Guards generalize approval and quality
// gates: the engine never interprets gate semantics itself.
type TransitionGuard func(w *Workflow, from, to State) error

// requireValidated is the built-in guard on entering the running state:
// a workflow must have at least one task and must have passed validation.
func requireValidated(w *Workflow, from, to State) error {
	if to != StateRunning || from == StatePaused {
		return nil
	}
	if len(w.tasks) == 0 {
		return NewError(ErrEmptyWorkflow, "workflow %s has no tasks", w.id)
	}
	if !w.dependenciesResolved {
		return NewError(ErrNotValidated, "workflow %s has not been validated", w.id)
	}
	return nil
}

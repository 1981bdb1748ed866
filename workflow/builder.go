package workflow

import (
	"time"
)

// Builder provides a fluent API for declaring a workflow. Build hands the
// accumulated definition to an Engine and wires up task conditions, which
// cannot be expressed declaratively.
type Builder struct {
	def        Definition
	conditions map[string]builderCondition
}

type builderCondition struct {
	fn          ConditionFunc
	skipOnFalse bool
}

// NewBuilder creates a builder for a workflow with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		def:        Definition{Name: name},
		conditions: make(map[string]builderCondition),
	}
}

// WithDescription sets the workflow description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.def.Description = desc
	return b
}

// WithMode sets the execution mode.
func (b *Builder) WithMode(mode ExecutionMode) *Builder {
	b.def.Mode = mode
	return b
}

// WithMaxParallel sets the parallel-task cap.
func (b *Builder) WithMaxParallel(n int) *Builder {
	b.def.MaxParallel = n
	return b
}

// WithStrategy sets the error-handling strategy.
func (b *Builder) WithStrategy(strategy ErrorStrategy) *Builder {
	b.def.Strategy = strategy
	return b
}

// WithTimeout sets the advisory workflow timeout.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.def.Timeout = d
	return b
}

// Task declares a task with the given ID and kind and returns a TaskBuilder
// for further configuration. The name defaults to the ID.
func (b *Builder) Task(id, kind string) *TaskBuilder {
	td := TaskDefinition{ID: id, Name: id, Kind: kind}
	b.def.Tasks = append(b.def.Tasks, td)
	return &TaskBuilder{parent: b, idx: len(b.def.Tasks) - 1}
}

// Definition returns the accumulated declarative definition.
func (b *Builder) Definition() Definition {
	return b.def
}

// Create validates the definition, creates the workflow on the engine, and
// attaches the declared conditions. The workflow is left in draft; call
// Engine.Validate and Engine.Start to run it.
func (b *Builder) Create(e *Engine) (*Workflow, error) {
	if err := ValidateDefinition(&b.def); err != nil {
		return nil, err
	}
	w, err := e.CreateWorkflow(b.def)
	if err != nil {
		return nil, err
	}
	for taskID, cond := range b.conditions {
		if err := e.SetCondition(w.ID(), taskID, cond.fn, cond.skipOnFalse); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// TaskBuilder configures a single declared task.
type TaskBuilder struct {
	parent *Builder
	idx    int
}

func (tb *TaskBuilder) td() *TaskDefinition {
	return &tb.parent.def.Tasks[tb.idx]
}

// Named sets a human-readable name distinct from the ID.
func (tb *TaskBuilder) Named(name string) *TaskBuilder {
	tb.td().Name = name
	return tb
}

// Priority orders the task within the ready set; higher dispatches first.
func (tb *TaskBuilder) Priority(p int) *TaskBuilder {
	tb.td().Priority = p
	return tb
}

// DependsOn declares dependencies on other tasks by ID.
func (tb *TaskBuilder) DependsOn(ids ...string) *TaskBuilder {
	tb.td().DependsOn = append(tb.td().DependsOn, ids...)
	return tb
}

// MaxRetries caps retries under the retry strategy.
func (tb *TaskBuilder) MaxRetries(n int) *TaskBuilder {
	tb.td().MaxRetries = n
	return tb
}

// AllowFailure lets the task fail without aborting the workflow.
func (tb *TaskBuilder) AllowFailure() *TaskBuilder {
	tb.td().AllowFailure = true
	return tb
}

// Params sets the task's input parameters.
func (tb *TaskBuilder) Params(params map[string]any) *TaskBuilder {
	tb.td().Params = params
	return tb
}

// Condition attaches a condition evaluated against the context at dispatch
// time. With skipOnFalse the task is skipped when the condition is false;
// otherwise the result is recorded and the task dispatches anyway.
func (tb *TaskBuilder) Condition(fn ConditionFunc, skipOnFalse bool) *TaskBuilder {
	tb.parent.conditions[tb.td().ID] = builderCondition{fn: fn, skipOnFalse: skipOnFalse}
	tb.td().SkipOnCondition = skipOnFalse
	return tb
}

// Done completes task configuration and returns to the Builder.
func (tb *TaskBuilder) Done() *Builder {
	return tb.parent
}

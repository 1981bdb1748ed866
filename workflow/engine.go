package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusops/taskflow/internal/metrics"
)

// Engine is the workflow coordinator. It owns a registry of workflow
// instances and serializes every scheduling decision for a workflow under
// that workflow's lock: computing ready sets, moving the running-task
// counter, and appending audit events. Task execution itself is
// asynchronous; the engine issues a dispatch and returns, and completion
// arrives later through ReportResult.
type Engine struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow

	executor TaskExecutor
	logger   *zap.Logger
	metrics  *metrics.Collector
	clock    func() time.Time
	actor    string
	guards   []TransitionGuard
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithActor sets the actor name recorded on audit events the engine emits
// on behalf of its caller. Defaults to "engine".
func WithActor(actor string) Option {
	return func(e *Engine) { e.actor = actor }
}

// WithGuard registers a transition guard applied to every workflow this
// engine creates, evaluated before any lifecycle transition.
func WithGuard(guard TransitionGuard) Option {
	return func(e *Engine) { e.guards = append(e.guards, guard) }
}

// NewEngine creates an Engine that delegates task execution to executor.
func NewEngine(executor TaskExecutor, opts ...Option) *Engine {
	e := &Engine{
		workflows: make(map[string]*Workflow),
		executor:  executor,
		logger:    zap.NewNop(),
		clock:     time.Now,
		actor:     "engine",
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	return e
}

// CreateWorkflow initializes a workflow in draft state with an empty
// registry, graph, context, and audit trail, then registers the tasks and
// dependencies declared in the definition.
func (e *Engine) CreateWorkflow(def Definition) (*Workflow, error) {
	w := newWorkflow(def, e.clock, e.guards)

	w.mu.Lock()
	w.audit.record(EventWorkflowCreated, "", e.actor, fmt.Sprintf("workflow %q created", def.Name))
	for _, td := range def.Tasks {
		if _, err := e.addTaskLocked(w, td); err != nil {
			w.mu.Unlock()
			return nil, err
		}
	}
	w.mu.Unlock()

	e.mu.Lock()
	e.workflows[w.id] = w
	e.mu.Unlock()

	e.logger.Info("workflow created",
		zap.String("workflow_id", w.id),
		zap.String("name", w.name),
		zap.String("mode", string(w.mode)),
		zap.String("strategy", string(w.strategy)),
	)
	return w, nil
}

// Workflow returns the workflow with the given ID.
func (e *Engine) Workflow(workflowID string) (*Workflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workflows[workflowID]
	return w, ok
}

func (e *Engine) lookup(workflowID string) (*Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workflows[workflowID]
	if !ok {
		return nil, NewError(ErrWorkflowNotFound, "workflow %s not found", workflowID)
	}
	return w, nil
}

// AddTask adds a task to a draft workflow and returns a copy of it.
func (e *Engine) AddTask(workflowID string, td TaskDefinition) (*Task, error) {
	w, err := e.lookup(workflowID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateDraft {
		return nil, NewError(ErrInvalidTransition, "workflow %s: tasks may only be added in draft, not %s", w.id, w.state)
	}
	t, err := e.addTaskLocked(w, td)
	if err != nil {
		return nil, err
	}
	return t.clone(), nil
}

func (e *Engine) addTaskLocked(w *Workflow, td TaskDefinition) (*Task, error) {
	id := td.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := w.tasks[id]; exists {
		return nil, NewError(ErrDuplicateTask, "workflow %s: task %s already exists", w.id, id)
	}

	t := &Task{
		ID:              id,
		Name:            td.Name,
		Kind:            td.Kind,
		Priority:        td.Priority,
		Status:          TaskStatusPending,
		MaxRetries:      td.MaxRetries,
		AllowFailure:    td.AllowFailure,
		SkipOnCondition: td.SkipOnCondition,
		Params:          copyMap(td.Params),
		CreatedAt:       e.clock(),
		seq:             len(w.taskOrder),
	}
	w.tasks[id] = t
	w.taskOrder = append(w.taskOrder, id)
	w.dependenciesResolved = false
	w.audit.record(EventTaskAdded, id, e.actor, fmt.Sprintf("task %q (%s) added", td.Name, td.Kind))

	for _, dep := range td.DependsOn {
		e.addDependencyLocked(w, t, dep)
	}
	return t, nil
}

// AddDependency records that taskID depends on dependsOnID. Only legal in
// draft; cycles and dangling targets are not rejected here but at Validate.
func (e *Engine) AddDependency(workflowID, taskID, dependsOnID string) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateDraft {
		return NewError(ErrInvalidTransition, "workflow %s: dependencies may only be added in draft, not %s", w.id, w.state)
	}
	t, ok := w.tasks[taskID]
	if !ok {
		return NewError(ErrTaskNotFound, "workflow %s: task %s not found", w.id, taskID)
	}
	e.addDependencyLocked(w, t, dependsOnID)
	return nil
}

func (e *Engine) addDependencyLocked(w *Workflow, t *Task, dependsOnID string) {
	t.DependsOn = append(t.DependsOn, dependsOnID)
	w.graph.addEdge(t.ID, dependsOnID)
	w.dependenciesResolved = false
	w.audit.record(EventDependencyAdded, t.ID, e.actor, fmt.Sprintf("task %s depends on %s", t.ID, dependsOnID))
}

// SetCondition attaches a condition to a draft task. When skipOnFalse is
// set, a false condition skips the task at dispatch time; otherwise the
// result is recorded but the task still dispatches.
func (e *Engine) SetCondition(workflowID, taskID string, cond ConditionFunc, skipOnFalse bool) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateDraft {
		return NewError(ErrInvalidTransition, "workflow %s: conditions may only be set in draft, not %s", w.id, w.state)
	}
	t, ok := w.tasks[taskID]
	if !ok {
		return NewError(ErrTaskNotFound, "workflow %s: task %s not found", w.id, taskID)
	}
	t.Condition = cond
	t.SkipOnCondition = skipOnFalse
	return nil
}

// Validate checks the workflow graph: at least one task, every dependency
// target present, and no cycles. On success the workflow moves to ready; on
// failure it returns to draft with the validation error.
func (e *Engine) Validate(workflowID string) (bool, error) {
	w, err := e.lookup(workflowID)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.transition(StateValidating); err != nil {
		return false, err
	}

	if verr := e.validateLocked(w); verr != nil {
		w.state = StateDraft
		w.audit.record(EventValidationFailed, "", e.actor, verr.Error())
		e.logger.Warn("workflow validation failed",
			zap.String("workflow_id", w.id),
			zap.Error(verr),
		)
		return false, verr
	}

	w.dependenciesResolved = true
	if err := w.transition(StateReady); err != nil {
		return false, err
	}
	w.audit.record(EventWorkflowValidated, "", e.actor, "validation passed, workflow ready")
	e.logger.Info("workflow validated",
		zap.String("workflow_id", w.id),
		zap.Int("tasks", len(w.tasks)),
	)
	return true, nil
}

func (e *Engine) validateLocked(w *Workflow) error {
	if len(w.tasks) == 0 {
		return NewError(ErrEmptyWorkflow, "workflow %s has no tasks", w.id)
	}
	for _, id := range w.taskOrder {
		for _, dep := range w.graph.dependenciesOf(id) {
			if _, ok := w.tasks[dep]; !ok {
				return NewError(ErrDanglingDependency, "task %s depends on unknown task %s", id, dep)
			}
		}
	}
	if on := w.graph.findCycle(w.taskOrder); on != "" {
		return NewError(ErrCycleDetected, "dependency cycle involving task %s", on)
	}
	return nil
}

// Start transitions the workflow to running and dispatches the initial
// ready set. Starting an unvalidated or empty workflow is rejected by the
// built-in transition guard.
func (e *Engine) Start(workflowID string) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	from := w.state
	if err := w.transition(StateRunning); err != nil {
		return err
	}
	w.audit.record(EventWorkflowStarted, "", e.actor, "workflow started")
	e.recordTransition(w, from, StateRunning)
	e.logger.Info("workflow started", zap.String("workflow_id", w.id))
	e.scheduleLocked(w)
	return nil
}

// Pause suspends dispatching. Already-running tasks keep running and their
// completions are still accepted.
func (e *Engine) Pause(workflowID string) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.transition(StatePaused); err != nil {
		return err
	}
	w.audit.record(EventWorkflowPaused, "", e.actor, "workflow paused")
	e.logger.Info("workflow paused", zap.String("workflow_id", w.id))
	return nil
}

// Resume restarts dispatching after a pause.
func (e *Engine) Resume(workflowID string) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.transition(StateRunning); err != nil {
		return err
	}
	w.audit.record(EventWorkflowResumed, "", e.actor, "workflow resumed")
	e.logger.Info("workflow resumed", zap.String("workflow_id", w.id))
	e.scheduleLocked(w)
	return nil
}

// Cancel moves a non-terminal workflow to cancelled and marks every running
// task cancelled in the registry. In-flight work is not forcibly
// terminated; honoring cancellation is the executor's responsibility.
func (e *Engine) Cancel(workflowID string) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	from := w.state
	if err := w.transition(StateCancelled); err != nil {
		return err
	}
	for _, id := range w.taskOrder {
		t := w.tasks[id]
		if t.Status == TaskStatusRunning {
			t.Status = TaskStatusCancelled
			t.FinishedAt = e.clock()
			w.audit.record(EventTaskCancelled, t.ID, e.actor, "task cancelled with workflow")
		}
	}
	w.running = 0
	w.audit.record(EventWorkflowCancelled, "", e.actor, "workflow cancelled")
	e.recordTransition(w, from, StateCancelled)
	e.logger.Info("workflow cancelled",
		zap.String("workflow_id", w.id),
		zap.String("from_state", string(from)),
	)
	return nil
}

// ReadyTasks returns copies of the tasks whose dependencies are all
// completed or skipped and that have not been dispatched yet. Conditions
// are not evaluated here; that happens at dispatch time.
func (e *Engine) ReadyTasks(workflowID string) ([]*Task, error) {
	w, err := e.lookup(workflowID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*Task
	for _, t := range e.readyLocked(w) {
		out = append(out, t.clone())
	}
	return out, nil
}

// AuditTrail returns the workflow's audit trail in append order.
func (e *Engine) AuditTrail(workflowID string) ([]Event, error) {
	w, err := e.lookup(workflowID)
	if err != nil {
		return nil, err
	}
	return w.AuditTrail(), nil
}

// DispatchTask dispatches one specific task, subject to the same state,
// dependency, and capacity checks as the scheduler. A task whose
// dependencies are unmet is rejected and stays waiting; that is an expected
// condition, not a fault, so no failure is recorded.
func (e *Engine) DispatchTask(workflowID, taskID string) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateRunning {
		return NewError(ErrInvalidTransition, "workflow %s is %s, not running", w.id, w.state)
	}
	t, ok := w.tasks[taskID]
	if !ok {
		return NewError(ErrTaskNotFound, "workflow %s: task %s not found", w.id, taskID)
	}
	if t.Status != TaskStatusPending && t.Status != TaskStatusWaiting {
		return NewError(ErrInvalidTransition, "task %s is %s, not dispatchable", t.ID, t.Status)
	}
	if !w.dependenciesMet(t) {
		e.markWaiting(w, t)
		return NewError(ErrDependenciesUnmet, "task %s has unmet dependencies", t.ID)
	}
	if w.running >= e.capacity(w) {
		return NewError(ErrInvalidTransition, "workflow %s is at its parallel task cap", w.id)
	}
	dispatchable, err := e.evaluateConditionLocked(w, t)
	if err != nil {
		return NewError(ErrConditionFailed, "task %s condition evaluation failed", t.ID).WithCause(err)
	}
	if !dispatchable {
		// Skipped; the skip may unblock dependents or complete the workflow.
		e.scheduleLocked(w)
		return nil
	}
	e.dispatchLocked(w, t)
	return nil
}

// CompleteTask reports a task outcome. On success the results are merged
// into the workflow context and scheduling re-runs; on failure the error
// strategy is applied. The failure message may be passed under the "error"
// results key.
func (e *Engine) CompleteTask(workflowID, taskID string, success bool, results map[string]any) error {
	res := Result{TaskID: taskID, Success: success, Results: results}
	if !success {
		if msg, ok := results["error"].(string); ok {
			res.Message = msg
		}
		if cat, ok := results["category"].(string); ok {
			res.Category = cat
		}
	}
	return e.ReportResult(workflowID, res)
}

// ReportResult is the callback executors use to report a task outcome.
func (e *Engine) ReportResult(workflowID string, res Result) error {
	w, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.tasks[res.TaskID]
	if !ok {
		return NewError(ErrTaskNotFound, "workflow %s: task %s not found", w.id, res.TaskID)
	}
	if t.Status != TaskStatusRunning {
		return NewError(ErrInvalidTransition, "task %s is %s, not running", t.ID, t.Status)
	}

	w.running--
	if e.metrics != nil {
		e.metrics.SetRunningTasks(w.name, w.running)
	}
	if res.Success {
		e.completeLocked(w, t, res.Results)
	} else {
		e.failLocked(w, t, res)
	}
	return nil
}

func (e *Engine) completeLocked(w *Workflow, t *Task, results map[string]any) {
	t.Status = TaskStatusCompleted
	t.FinishedAt = e.clock()
	t.Results = copyMap(results)
	w.ctx.merge(results)
	w.completionOrder = append(w.completionOrder, t.ID)
	w.audit.record(EventTaskCompleted, t.ID, e.actor, fmt.Sprintf("task %q completed", t.Name))
	if e.metrics != nil {
		e.metrics.RecordTaskFinished(t.Kind, "completed", t.FinishedAt.Sub(t.StartedAt))
	}
	e.logger.Debug("task completed",
		zap.String("workflow_id", w.id),
		zap.String("task_id", t.ID),
	)
	e.scheduleLocked(w)
}

// failLocked applies the failure policy in order: allow-failure/continue,
// then retry below cap, then workflow failure.
func (e *Engine) failLocked(w *Workflow, t *Task, res Result) {
	msg := res.Message
	if msg == "" {
		msg = "task failed"
	}
	w.errors = append(w.errors, TaskError{
		TaskID:    t.ID,
		Message:   msg,
		Category:  res.Category,
		Attempt:   t.RetryCount,
		Timestamp: e.clock(),
	})
	w.audit.record(EventTaskFailed, t.ID, e.actor, fmt.Sprintf("task %q failed: %s", t.Name, msg))
	if e.metrics != nil && !t.StartedAt.IsZero() {
		e.metrics.RecordTaskFinished(t.Kind, "failed", e.clock().Sub(t.StartedAt))
	}
	e.logger.Warn("task failed",
		zap.String("workflow_id", w.id),
		zap.String("task_id", t.ID),
		zap.String("message", msg),
		zap.Int("attempt", t.RetryCount),
	)

	switch {
	case t.AllowFailure || w.strategy == StrategyContinue:
		t.Status = TaskStatusFailed
		t.FinishedAt = e.clock()
		e.scheduleLocked(w)

	case w.strategy == StrategyRetry && t.RetryCount < t.MaxRetries:
		t.RetryCount++
		t.Status = TaskStatusPending
		w.audit.record(EventTaskRetried, t.ID, e.actor, fmt.Sprintf("task %q reset for retry %d/%d", t.Name, t.RetryCount, t.MaxRetries))
		if e.metrics != nil {
			e.metrics.RecordTaskRetry(t.Kind)
		}
		e.scheduleLocked(w)

	default:
		t.Status = TaskStatusFailed
		t.FinishedAt = e.clock()
		from := w.state
		if err := w.transition(StateFailed); err == nil {
			w.audit.record(EventWorkflowFailed, "", e.actor, fmt.Sprintf("workflow failed: task %q: %s", t.Name, msg))
			e.recordTransition(w, from, StateFailed)
			e.logger.Error("workflow failed",
				zap.String("workflow_id", w.id),
				zap.String("task_id", t.ID),
			)
			if w.strategy == StrategyRollback {
				e.rollbackLocked(w)
			}
		}
	}
}

// rollbackLocked hands completed tasks to the executor's compensating hook
// in reverse completion order. Compensation is fire-and-forget from the
// engine's point of view; outcomes land in the audit trail only.
func (e *Engine) rollbackLocked(w *Workflow) {
	comp, ok := e.executor.(Compensator)
	if !ok {
		e.logger.Warn("rollback requested but executor has no compensating hook",
			zap.String("workflow_id", w.id),
		)
		return
	}
	for i := len(w.completionOrder) - 1; i >= 0; i-- {
		t := w.tasks[w.completionOrder[i]]
		d := e.dispatchFor(w, t)
		w.audit.record(EventTaskCompensated, t.ID, e.actor, fmt.Sprintf("compensating task %q", t.Name))
		go func(task string) {
			if err := comp.Compensate(context.Background(), d); err != nil {
				e.logger.Error("compensation failed",
					zap.String("workflow_id", d.WorkflowID),
					zap.String("task_id", task),
					zap.Error(err),
				)
			}
		}(t.ID)
	}
}

// capacity returns the parallel-task cap for the workflow's mode.
func (e *Engine) capacity(w *Workflow) int {
	if w.mode == ModeSequential {
		return 1
	}
	return w.maxParallel
}

// readyLocked returns dispatchable tasks ordered by priority (descending)
// then insertion order, marking newly blocked tasks waiting as a side
// effect.
func (e *Engine) readyLocked(w *Workflow) []*Task {
	var ready []*Task
	for _, id := range w.taskOrder {
		t := w.tasks[id]
		if t.Status != TaskStatusPending && t.Status != TaskStatusWaiting {
			continue
		}
		if !w.dependenciesMet(t) {
			e.markWaiting(w, t)
			continue
		}
		ready = append(ready, t)
	}
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].seq < ready[j].seq
	})
	return ready
}

func (e *Engine) markWaiting(w *Workflow, t *Task) {
	if t.Status == TaskStatusPending {
		t.Status = TaskStatusWaiting
		w.audit.record(EventTaskWaiting, t.ID, e.actor, "task waiting on dependencies")
	}
}

// scheduleLocked is the dispatch loop: while the workflow is running and a
// slot is free, evaluate conditions and dispatch the next ready task. Must
// be called with w.mu held; it is the only path that moves tasks to
// running, so the dependency check and the dispatch are atomic.
func (e *Engine) scheduleLocked(w *Workflow) {
	if w.state != StateRunning {
		return
	}

	for {
		if w.allTasksResolved() {
			from := w.state
			if err := w.transition(StateCompleted); err == nil {
				w.audit.record(EventWorkflowCompleted, "", e.actor, "all tasks completed or skipped")
				e.recordTransition(w, from, StateCompleted)
				e.logger.Info("workflow completed", zap.String("workflow_id", w.id))
			}
			return
		}

		if w.running >= e.capacity(w) {
			return
		}

		ready := e.readyLocked(w)
		if len(ready) == 0 {
			if w.running == 0 {
				e.recordStall(w)
			}
			return
		}

		t := ready[0]

		dispatchable, err := e.evaluateConditionLocked(w, t)
		if err != nil {
			if w.state != StateRunning {
				return
			}
			continue
		}
		if !dispatchable {
			continue
		}

		e.dispatchLocked(w, t)
	}
}

// evaluateConditionLocked applies a task's condition at dispatch time. It
// returns whether the task should dispatch: a false condition with
// skip-on-condition marks the task skipped, a false one without it is
// informational only. An evaluation error fails the task through the normal
// failure policy and is returned to the caller. Must be called with w.mu
// held.
func (e *Engine) evaluateConditionLocked(w *Workflow, t *Task) (bool, error) {
	if t.Condition == nil {
		return true, nil
	}
	pass, err := t.Condition(context.Background(), w.ctx.snapshot())
	if err != nil {
		e.failLocked(w, t, Result{
			TaskID:   t.ID,
			Message:  fmt.Sprintf("condition evaluation: %v", err),
			Category: string(ErrConditionFailed),
		})
		return false, err
	}
	t.ConditionResult = &pass
	w.audit.record(EventConditionEvaluated, t.ID, e.actor, fmt.Sprintf("condition evaluated to %t", pass))
	if !pass && t.SkipOnCondition {
		t.Status = TaskStatusSkipped
		t.FinishedAt = e.clock()
		w.audit.record(EventTaskSkipped, t.ID, e.actor, "condition false, task skipped")
		e.logger.Debug("task skipped",
			zap.String("workflow_id", w.id),
			zap.String("task_id", t.ID),
		)
		return false, nil
	}
	// A false condition without skip-on-condition is informational: the
	// result is recorded and the task still dispatches.
	return true, nil
}

// recordStall notes a drained workflow that cannot complete: nothing
// running, nothing ready, but unresolved tasks remain (failed tasks under a
// continue policy block their dependents). The workflow stays running; the
// audit trail is the diagnosis record.
func (e *Engine) recordStall(w *Workflow) {
	if w.stalled {
		return
	}
	w.stalled = true
	w.audit.record(EventWorkflowStalled, "", e.actor, "no runnable tasks remain but workflow is unresolved")
	e.logger.Warn("workflow stalled", zap.String("workflow_id", w.id))
}

// dispatchLocked moves a task to running and hands it to the executor on a
// separate goroutine. Must be called with w.mu held.
func (e *Engine) dispatchLocked(w *Workflow, t *Task) {
	t.Status = TaskStatusRunning
	t.StartedAt = e.clock()
	w.running++
	w.stalled = false
	w.audit.record(EventTaskStarted, t.ID, e.actor, fmt.Sprintf("task %q dispatched (attempt %d)", t.Name, t.RetryCount))
	if e.metrics != nil {
		e.metrics.RecordTaskDispatched(t.Kind)
		e.metrics.SetRunningTasks(w.name, w.running)
	}
	e.logger.Debug("task dispatched",
		zap.String("workflow_id", w.id),
		zap.String("task_id", t.ID),
		zap.String("kind", t.Kind),
		zap.Int("running", w.running),
	)

	d := e.dispatchFor(w, t)
	go func() {
		if err := e.executor.Execute(context.Background(), d); err != nil {
			// The executor refused the dispatch; route through the
			// failure policy like any reported failure.
			_ = e.ReportResult(d.WorkflowID, Result{
				TaskID:   d.TaskID,
				Message:  fmt.Sprintf("executor rejected dispatch: %v", err),
				Category: string(ErrExecutorRejected),
			})
		}
	}()
}

// dispatchFor builds the Dispatch handed to the executor. Must be called
// with w.mu held.
func (e *Engine) dispatchFor(w *Workflow, t *Task) Dispatch {
	return Dispatch{
		WorkflowID: w.id,
		TaskID:     t.ID,
		Name:       t.Name,
		Kind:       t.Kind,
		Attempt:    t.RetryCount,
		Params:     copyMap(t.Params),
		Context:    w.ctx.snapshot(),
	}
}

func (e *Engine) recordTransition(w *Workflow, from, to State) {
	if e.metrics != nil {
		e.metrics.RecordStateTransition(string(from), string(to))
		e.metrics.SetRunningTasks(w.name, w.running)
	}
}

package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Mock helpers
// ---------------------------------------------------------------------------

// captureExecutor implements TaskExecutor and Compensator for engine tests.
// Dispatches and compensations are published on channels so tests can wait
// for the engine's asynchronous hand-off.
type captureExecutor struct {
	mu          sync.Mutex
	dispatches  []Dispatch
	ch          chan Dispatch
	compCh      chan Dispatch
	rejectKinds map[string]bool
}

func newCaptureExecutor() *captureExecutor {
	return &captureExecutor{
		ch:          make(chan Dispatch, 32),
		compCh:      make(chan Dispatch, 32),
		rejectKinds: make(map[string]bool),
	}
}

func (x *captureExecutor) Execute(_ context.Context, d Dispatch) error {
	if x.rejectKinds[d.Kind] {
		return errors.New("no handler for kind")
	}
	x.mu.Lock()
	x.dispatches = append(x.dispatches, d)
	x.mu.Unlock()
	x.ch <- d
	return nil
}

func (x *captureExecutor) Compensate(_ context.Context, d Dispatch) error {
	x.compCh <- d
	return nil
}

func recvDispatch(t *testing.T, ch chan Dispatch) Dispatch {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return Dispatch{}
	}
}

func noDispatch(t *testing.T, ch chan Dispatch) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("unexpected dispatch of task %s", d.TaskID)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestEngine(t *testing.T) (*Engine, *captureExecutor) {
	t.Helper()
	exec := newCaptureExecutor()
	return NewEngine(exec, WithLogger(zap.NewNop())), exec
}

// abcWorkflow builds tasks a (no deps), b and c (both depend on a).
func abcWorkflow(t *testing.T, e *Engine, mode ExecutionMode, maxParallel int, strategy ErrorStrategy) *Workflow {
	t.Helper()
	w, err := e.CreateWorkflow(Definition{
		Name:        "abc",
		Mode:        mode,
		MaxParallel: maxParallel,
		Strategy:    strategy,
		Tasks: []TaskDefinition{
			{ID: "a", Name: "a", Kind: "noop"},
			{ID: "b", Name: "b", Kind: "noop", DependsOn: []string{"a"}},
			{ID: "c", Name: "c", Kind: "noop", DependsOn: []string{"a"}},
		},
	})
	require.NoError(t, err)
	return w
}

func validateAndStart(t *testing.T, e *Engine, w *Workflow) {
	t.Helper()
	ok, err := e.Validate(w.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, e.Start(w.ID()))
}

// ---------------------------------------------------------------------------
// Create / AddTask / AddDependency
// ---------------------------------------------------------------------------

func TestCreateWorkflow_Defaults(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{Name: "empty"})
	require.NoError(t, err)
	assert.Equal(t, StateDraft, w.State())
	assert.Equal(t, ModeSequential, w.Mode())
	assert.Equal(t, StrategyAbort, w.Strategy())
	assert.Empty(t, w.Tasks())

	trail := w.AuditTrail()
	require.Len(t, trail, 1)
	assert.Equal(t, EventWorkflowCreated, trail[0].Type)
}

func TestAddTask_OnlyInDraft(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)

	ok, err := e.Validate(w.ID())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.AddTask(w.ID(), TaskDefinition{Name: "late", Kind: "noop"})
	require.Error(t, err)
	assert.Equal(t, ErrInvalidTransition, CodeOf(err))
}

func TestAddTask_Duplicate(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{Name: "dup"})
	require.NoError(t, err)

	_, err = e.AddTask(w.ID(), TaskDefinition{ID: "x", Name: "x", Kind: "noop"})
	require.NoError(t, err)
	_, err = e.AddTask(w.ID(), TaskDefinition{ID: "x", Name: "x2", Kind: "noop"})
	require.Error(t, err)
	assert.Equal(t, ErrDuplicateTask, CodeOf(err))
}

func TestAddDependency_UnknownOwner(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{Name: "deps"})
	require.NoError(t, err)

	err = e.AddDependency(w.ID(), "ghost", "also-ghost")
	require.Error(t, err)
	assert.Equal(t, ErrTaskNotFound, CodeOf(err))
}

func TestAddDependency_DanglingTargetDeferredToValidate(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{Name: "deps"})
	require.NoError(t, err)
	_, err = e.AddTask(w.ID(), TaskDefinition{ID: "x", Name: "x", Kind: "noop"})
	require.NoError(t, err)

	// Accepted now, rejected at validation.
	require.NoError(t, e.AddDependency(w.ID(), "x", "missing"))

	ok, err := e.Validate(w.ID())
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, ErrDanglingDependency, CodeOf(err))
	assert.Equal(t, StateDraft, w.State())
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_EmptyWorkflow(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{Name: "empty"})
	require.NoError(t, err)

	ok, err := e.Validate(w.ID())
	assert.False(t, ok)
	assert.Equal(t, ErrEmptyWorkflow, CodeOf(err))
	assert.Equal(t, StateDraft, w.State())
}

func TestValidate_CycleDetected(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name: "cycle",
		Tasks: []TaskDefinition{
			{ID: "a", Name: "a", Kind: "noop", DependsOn: []string{"c"}},
			{ID: "b", Name: "b", Kind: "noop", DependsOn: []string{"a"}},
			{ID: "c", Name: "c", Kind: "noop", DependsOn: []string{"b"}},
		},
	})
	require.NoError(t, err)

	ok, err := e.Validate(w.ID())
	assert.False(t, ok)
	assert.Equal(t, ErrCycleDetected, CodeOf(err))
	assert.Equal(t, StateDraft, w.State())

	failures := w.AuditByType(EventValidationFailed)
	require.Len(t, failures, 1)
}

func TestValidate_AcyclicBecomesReady(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)

	ok, err := e.Validate(w.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateReady, w.State())
}

func TestValidate_Revalidation(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)

	ok, err := e.Validate(w.ID())
	require.NoError(t, err)
	require.True(t, ok)

	// Ready workflows may be validated again.
	ok, err = e.Validate(w.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateReady, w.State())
}

// ---------------------------------------------------------------------------
// Start and dispatch
// ---------------------------------------------------------------------------

func TestStart_RejectedBeforeValidation(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)

	err := e.Start(w.ID())
	require.Error(t, err)
	assert.Equal(t, ErrNotValidated, CodeOf(err))
	assert.Equal(t, StateDraft, w.State())
}

func TestStart_SequentialDispatchesOne(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)

	d := recvDispatch(t, exec.ch)
	assert.Equal(t, "a", d.TaskID)
	noDispatch(t, exec.ch)

	assert.Equal(t, 1, w.Running())
	b, _ := w.Task("b")
	assert.Equal(t, TaskStatusWaiting, b.Status)
}

func TestParallel_FanOutAfterCompletion(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeParallel, 2, StrategyAbort)
	validateAndStart(t, e, w)

	first := recvDispatch(t, exec.ch)
	require.Equal(t, "a", first.TaskID)
	noDispatch(t, exec.ch)

	require.NoError(t, e.CompleteTask(w.ID(), "a", true, map[string]any{"k": "v"}))

	got := map[string]bool{}
	d1 := recvDispatch(t, exec.ch)
	d2 := recvDispatch(t, exec.ch)
	got[d1.TaskID] = true
	got[d2.TaskID] = true
	assert.True(t, got["b"] && got["c"], "both dependents should dispatch together")

	// Context snapshot carries a's results to its dependents.
	assert.Equal(t, "v", d1.Context["k"])
	assert.Equal(t, "v", d2.Context["k"])

	require.NoError(t, e.CompleteTask(w.ID(), "b", true, nil))
	require.NoError(t, e.CompleteTask(w.ID(), "c", true, nil))
	assert.Equal(t, StateCompleted, w.State())
}

func TestSequential_OneAtATime(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 4, StrategyAbort)
	validateAndStart(t, e, w)

	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, nil))

	// Even with maxParallel 4, sequential mode runs one task at a time.
	d := recvDispatch(t, exec.ch)
	noDispatch(t, exec.ch)
	require.NoError(t, e.CompleteTask(w.ID(), d.TaskID, true, nil))

	d = recvDispatch(t, exec.ch)
	require.NoError(t, e.CompleteTask(w.ID(), d.TaskID, true, nil))
	assert.Equal(t, StateCompleted, w.State())
}

func TestPriority_OrdersReadySet(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name: "prio",
		Mode: ModeSequential,
		Tasks: []TaskDefinition{
			{ID: "low", Name: "low", Kind: "noop", Priority: 1},
			{ID: "high", Name: "high", Kind: "noop", Priority: 10},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	assert.Equal(t, "high", recvDispatch(t, exec.ch).TaskID)
}

// ---------------------------------------------------------------------------
// Completion, context, queries
// ---------------------------------------------------------------------------

func TestCompleteTask_ContextLastWriteWins(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name: "ctx",
		Mode: ModeSequential,
		Tasks: []TaskDefinition{
			{ID: "first", Name: "first", Kind: "noop"},
			{ID: "second", Name: "second", Kind: "noop", DependsOn: []string{"first"}},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, map[string]any{"k": "v1"}))
	v, ok := w.ContextValue("k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, map[string]any{"k": "v2"}))
	v, _ = w.ContextValue("k")
	assert.Equal(t, "v2", v)
}

func TestCompleteTask_NotRunning(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)

	err := e.CompleteTask(w.ID(), "b", true, nil)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidTransition, CodeOf(err))
}

func TestReadyTasks_Query(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name: "ready",
		Tasks: []TaskDefinition{
			{ID: "a", Name: "a", Kind: "noop"},
			{ID: "b", Name: "b", Kind: "noop", DependsOn: []string{"a"}},
		},
	})
	require.NoError(t, err)

	ready, err := e.ReadyTasks(w.ID())
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID)
}

func TestDispatchTask_DependenciesUnmet(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeParallel, 2, StrategyAbort)
	validateAndStart(t, e, w)
	recvDispatch(t, exec.ch)

	err := e.DispatchTask(w.ID(), "b")
	require.Error(t, err)
	assert.Equal(t, ErrDependenciesUnmet, CodeOf(err))

	b, _ := w.Task("b")
	assert.Equal(t, TaskStatusWaiting, b.Status)
	// Expected condition, not a fault: no task_failed audit entry.
	assert.Empty(t, w.AuditByType(EventTaskFailed))
}

// ---------------------------------------------------------------------------
// Error strategies
// ---------------------------------------------------------------------------

func TestRetry_RedispatchUntilCapThenFails(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name:     "retry",
		Strategy: StrategyRetry,
		Tasks: []TaskDefinition{
			{ID: "x", Name: "x", Kind: "flaky", MaxRetries: 2},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	d := recvDispatch(t, exec.ch)
	assert.Equal(t, 0, d.Attempt)
	require.NoError(t, e.CompleteTask(w.ID(), "x", false, map[string]any{"error": "boom"}))

	d = recvDispatch(t, exec.ch)
	assert.Equal(t, 1, d.Attempt)
	require.NoError(t, e.CompleteTask(w.ID(), "x", false, map[string]any{"error": "boom"}))

	d = recvDispatch(t, exec.ch)
	assert.Equal(t, 2, d.Attempt)
	require.NoError(t, e.CompleteTask(w.ID(), "x", false, map[string]any{"error": "boom"}))

	noDispatch(t, exec.ch)
	x, _ := w.Task("x")
	assert.Equal(t, TaskStatusFailed, x.Status)
	assert.Equal(t, 2, x.RetryCount)
	assert.Equal(t, StateFailed, w.State())
	assert.Len(t, w.Errors(), 3)
	assert.Len(t, w.AuditByType(EventTaskRetried), 2)
}

func TestContinue_FailureDoesNotFailWorkflow(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name:        "continue",
		Mode:        ModeParallel,
		MaxParallel: 2,
		Strategy:    StrategyContinue,
		Tasks: []TaskDefinition{
			{ID: "bad", Name: "bad", Kind: "noop"},
			{ID: "good", Name: "good", Kind: "noop"},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	d1 := recvDispatch(t, exec.ch)
	d2 := recvDispatch(t, exec.ch)
	ids := map[string]Dispatch{d1.TaskID: d1, d2.TaskID: d2}
	require.Contains(t, ids, "bad")
	require.Contains(t, ids, "good")

	require.NoError(t, e.CompleteTask(w.ID(), "bad", false, map[string]any{"error": "nope"}))
	assert.Equal(t, StateRunning, w.State())

	require.NoError(t, e.CompleteTask(w.ID(), "good", true, nil))

	// Not all tasks resolved completed/skipped, so the workflow does not
	// complete; the drain is recorded as a stall.
	assert.Equal(t, StateRunning, w.State())
	assert.Len(t, w.AuditByType(EventWorkflowStalled), 1)
}

func TestAllowFailure_DependentsStayBlocked(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name:     "allow",
		Strategy: StrategyAbort,
		Tasks: []TaskDefinition{
			{ID: "soft", Name: "soft", Kind: "noop", AllowFailure: true},
			{ID: "after", Name: "after", Kind: "noop", DependsOn: []string{"soft"}},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	recvDispatch(t, exec.ch)
	require.NoError(t, e.CompleteTask(w.ID(), "soft", false, map[string]any{"error": "tolerated"}))

	// allow_failure overrides the abort strategy for this task.
	assert.Equal(t, StateRunning, w.State())
	noDispatch(t, exec.ch)
	after, _ := w.Task("after")
	assert.Equal(t, TaskStatusWaiting, after.Status)
}

func TestAbort_FirstFailureFailsWorkflow(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)

	recvDispatch(t, exec.ch)
	require.NoError(t, e.CompleteTask(w.ID(), "a", false, map[string]any{"error": "fatal", "category": "io"}))

	assert.Equal(t, StateFailed, w.State())
	noDispatch(t, exec.ch)

	errs := w.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "a", errs[0].TaskID)
	assert.Equal(t, "fatal", errs[0].Message)
	assert.Equal(t, "io", errs[0].Category)
}

func TestRollback_CompensatesInReverseCompletionOrder(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name:     "rollback",
		Mode:     ModeSequential,
		Strategy: StrategyRollback,
		Tasks: []TaskDefinition{
			{ID: "one", Name: "one", Kind: "noop"},
			{ID: "two", Name: "two", Kind: "noop", DependsOn: []string{"one"}},
			{ID: "three", Name: "three", Kind: "noop", DependsOn: []string{"two"}},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, nil))
	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, nil))
	recvDispatch(t, exec.ch)
	require.NoError(t, e.CompleteTask(w.ID(), "three", false, map[string]any{"error": "boom"}))

	assert.Equal(t, StateFailed, w.State())
	first := recvDispatch(t, exec.compCh)
	second := recvDispatch(t, exec.compCh)
	assert.ElementsMatch(t, []string{"one", "two"}, []string{first.TaskID, second.TaskID})

	// Compensation is issued in reverse completion order; the audit trail
	// records that order deterministically.
	compensated := w.AuditByType(EventTaskCompensated)
	require.Len(t, compensated, 2)
	assert.Equal(t, "two", compensated[0].TaskID)
	assert.Equal(t, "one", compensated[1].TaskID)
}

func TestExecutorRejection_RoutedThroughFailurePolicy(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	exec.rejectKinds["broken"] = true
	w, err := e.CreateWorkflow(Definition{
		Name:     "reject",
		Strategy: StrategyAbort,
		Tasks: []TaskDefinition{
			{ID: "r", Name: "r", Kind: "broken"},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	require.Eventually(t, func() bool {
		return w.State() == StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	errs := w.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, string(ErrExecutorRejected), errs[0].Category)
}

// ---------------------------------------------------------------------------
// Pause / Resume / Cancel
// ---------------------------------------------------------------------------

func TestPauseResume(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeParallel, 2, StrategyAbort)
	validateAndStart(t, e, w)

	recvDispatch(t, exec.ch)
	require.NoError(t, e.Pause(w.ID()))

	// Completions are accepted while paused, but nothing new dispatches.
	require.NoError(t, e.CompleteTask(w.ID(), "a", true, nil))
	noDispatch(t, exec.ch)
	assert.Equal(t, StatePaused, w.State())

	require.NoError(t, e.Resume(w.ID()))
	d1 := recvDispatch(t, exec.ch)
	d2 := recvDispatch(t, exec.ch)
	assert.ElementsMatch(t, []string{"b", "c"}, []string{d1.TaskID, d2.TaskID})
}

func TestCancel_MarksRunningTasksCancelled(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)
	recvDispatch(t, exec.ch)

	require.NoError(t, e.Cancel(w.ID()))
	assert.Equal(t, StateCancelled, w.State())
	a, _ := w.Task("a")
	assert.Equal(t, TaskStatusCancelled, a.Status)
	assert.Zero(t, w.Running())

	// A late completion from the executor is rejected; no further
	// dispatches happen.
	err := e.CompleteTask(w.ID(), "a", true, nil)
	require.Error(t, err)
	noDispatch(t, exec.ch)
}

func TestFailWhilePaused_AbortFailsWorkflow(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)
	recvDispatch(t, exec.ch)

	require.NoError(t, e.Pause(w.ID()))

	// A failure that exhausts the policy fails the workflow even while
	// paused; it must not linger until resume.
	require.NoError(t, e.CompleteTask(w.ID(), "a", false, map[string]any{"error": "boom"}))
	assert.Equal(t, StateFailed, w.State())
	assert.Len(t, w.AuditByType(EventWorkflowFailed), 1)
	assert.Empty(t, w.AuditByType(EventWorkflowStalled))

	err := e.Resume(w.ID())
	require.Error(t, err)
	assert.Equal(t, ErrInvalidTransition, CodeOf(err))
}

func TestFailWhilePaused_RollbackCompensates(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name:     "paused-rollback",
		Mode:     ModeSequential,
		Strategy: StrategyRollback,
		Tasks: []TaskDefinition{
			{ID: "one", Name: "one", Kind: "noop"},
			{ID: "two", Name: "two", Kind: "noop", DependsOn: []string{"one"}},
		},
	})
	require.NoError(t, err)
	validateAndStart(t, e, w)

	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, nil))
	recvDispatch(t, exec.ch)

	require.NoError(t, e.Pause(w.ID()))
	require.NoError(t, e.CompleteTask(w.ID(), "two", false, map[string]any{"error": "boom"}))

	assert.Equal(t, StateFailed, w.State())
	comp := recvDispatch(t, exec.compCh)
	assert.Equal(t, "one", comp.TaskID)
	assert.Len(t, w.AuditByType(EventTaskCompensated), 1)
}

func TestTerminalStates_RejectTransitions(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)
	require.NoError(t, e.Cancel(w.ID()))

	for _, op := range []func(string) error{e.Start, e.Pause, e.Resume, e.Cancel} {
		err := op(w.ID())
		require.Error(t, err)
		assert.Equal(t, ErrInvalidTransition, CodeOf(err))
	}
	assert.Equal(t, StateCancelled, w.State())
}

func TestCustomGuard_VetoesTransition(t *testing.T) {
	t.Parallel()
	exec := newCaptureExecutor()
	approved := false
	e := NewEngine(exec,
		WithLogger(zap.NewNop()),
		WithGuard(func(w *Workflow, from, to State) error {
			if to == StateRunning && !approved {
				return NewError(ErrGuardRejected, "approval gate unmet")
			}
			return nil
		}),
	)

	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	ok, err := e.Validate(w.ID())
	require.NoError(t, err)
	require.True(t, ok)

	err = e.Start(w.ID())
	require.Error(t, err)
	assert.Equal(t, ErrGuardRejected, CodeOf(err))
	assert.Equal(t, StateReady, w.State())

	approved = true
	require.NoError(t, e.Start(w.ID()))
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

func TestCondition_SkipOnFalse(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name: "cond",
		Mode: ModeSequential,
		Tasks: []TaskDefinition{
			{ID: "gate", Name: "gate", Kind: "noop"},
			{ID: "guarded", Name: "guarded", Kind: "noop", DependsOn: []string{"gate"}},
			{ID: "after", Name: "after", Kind: "noop", DependsOn: []string{"guarded"}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.SetCondition(w.ID(), "guarded", func(_ context.Context, snap map[string]any) (bool, error) {
		enabled, _ := snap["enabled"].(bool)
		return enabled, nil
	}, true))
	validateAndStart(t, e, w)

	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, map[string]any{"enabled": false}))

	// guarded is skipped without dispatch; its dependent proceeds.
	d := recvDispatch(t, exec.ch)
	assert.Equal(t, "after", d.TaskID)
	guarded, _ := w.Task("guarded")
	assert.Equal(t, TaskStatusSkipped, guarded.Status)
	require.NotNil(t, guarded.ConditionResult)
	assert.False(t, *guarded.ConditionResult)

	require.NoError(t, e.CompleteTask(w.ID(), "after", true, nil))
	assert.Equal(t, StateCompleted, w.State())
}

func TestCondition_InformationalFalseStillDispatches(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name: "cond-info",
		Tasks: []TaskDefinition{
			{ID: "t", Name: "t", Kind: "noop"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.SetCondition(w.ID(), "t", func(context.Context, map[string]any) (bool, error) {
		return false, nil
	}, false))
	validateAndStart(t, e, w)

	// The false result is recorded but the task dispatches anyway.
	d := recvDispatch(t, exec.ch)
	assert.Equal(t, "t", d.TaskID)
	tt, _ := w.Task("t")
	require.NotNil(t, tt.ConditionResult)
	assert.False(t, *tt.ConditionResult)
	assert.Len(t, w.AuditByType(EventConditionEvaluated), 1)
}

func TestCondition_EvaluationErrorFailsTask(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name:     "cond-err",
		Strategy: StrategyAbort,
		Tasks: []TaskDefinition{
			{ID: "t", Name: "t", Kind: "noop"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.SetCondition(w.ID(), "t", func(context.Context, map[string]any) (bool, error) {
		return false, errors.New("bad expression")
	}, true))
	validateAndStart(t, e, w)

	noDispatch(t, exec.ch)
	assert.Equal(t, StateFailed, w.State())
	errs := w.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, string(ErrConditionFailed), errs[0].Category)
}

func TestDispatchTask_EvaluatesCondition(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name: "manual-cond",
		Mode: ModeParallel,
		Tasks: []TaskDefinition{
			{ID: "guarded", Name: "guarded", Kind: "noop"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.SetCondition(w.ID(), "guarded", func(context.Context, map[string]any) (bool, error) {
		return false, nil
	}, true))

	ok, err := e.Validate(w.ID())
	require.NoError(t, err)
	require.True(t, ok)

	// Move to running without Start so the scheduler has not touched the
	// task; the scheduler otherwise always wins the race to evaluate.
	w.mu.Lock()
	w.state = StateRunning
	w.mu.Unlock()

	require.NoError(t, e.DispatchTask(w.ID(), "guarded"))
	noDispatch(t, exec.ch)

	guarded, _ := w.Task("guarded")
	assert.Equal(t, TaskStatusSkipped, guarded.Status)
	assert.Len(t, w.AuditByType(EventConditionEvaluated), 1)
	assert.Equal(t, StateCompleted, w.State())
}

func TestDispatchTask_ConditionErrorFailsTask(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w, err := e.CreateWorkflow(Definition{
		Name:     "manual-cond-err",
		Strategy: StrategyAbort,
		Tasks: []TaskDefinition{
			{ID: "t", Name: "t", Kind: "noop"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.SetCondition(w.ID(), "t", func(context.Context, map[string]any) (bool, error) {
		return false, errors.New("bad expression")
	}, true))

	ok, err := e.Validate(w.ID())
	require.NoError(t, err)
	require.True(t, ok)

	w.mu.Lock()
	w.state = StateRunning
	w.mu.Unlock()

	err = e.DispatchTask(w.ID(), "t")
	require.Error(t, err)
	assert.Equal(t, ErrConditionFailed, CodeOf(err))
	noDispatch(t, exec.ch)
	assert.Equal(t, StateFailed, w.State())
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

func TestAuditTrail_AppendOrderAndImmutability(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)
	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, nil))

	trail, err := e.AuditTrail(w.ID())
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, EventWorkflowCreated, trail[0].Type)
	for i := 1; i < len(trail); i++ {
		assert.False(t, trail[i].Timestamp.Before(trail[i-1].Timestamp), "trail must be time-ordered")
	}

	// Mutating the returned slice must not affect the workflow's trail.
	trail[0].Description = "tampered"
	fresh := w.AuditTrail()
	assert.NotEqual(t, "tampered", fresh[0].Description)
}

func TestAuditTrail_TaskFilter(t *testing.T) {
	t.Parallel()
	e, exec := newTestEngine(t)
	w := abcWorkflow(t, e, ModeSequential, 1, StrategyAbort)
	validateAndStart(t, e, w)
	require.NoError(t, e.CompleteTask(w.ID(), recvDispatch(t, exec.ch).TaskID, true, nil))

	events := w.AuditByTask("a")
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, "a", ev.TaskID)
	}
}

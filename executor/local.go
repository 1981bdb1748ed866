// Package executor provides an in-process TaskExecutor that runs task
// kinds through registered handler functions. It is the reference
// implementation of the engine's external executor collaborator: dispatches
// are admitted through a bounded semaphore, optionally rate limited, traced
// with OpenTelemetry, and reported back to the engine asynchronously.
package executor

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/campusops/taskflow/workflow"
)

// Handler runs the domain logic for one task kind. The returned map is
// merged into the workflow context on success.
type Handler func(ctx context.Context, d workflow.Dispatch) (map[string]any, error)

// Reporter receives task outcomes. *workflow.Engine satisfies it.
type Reporter interface {
	ReportResult(workflowID string, res workflow.Result) error
}

// Local is an in-process TaskExecutor backed by a handler registry.
type Local struct {
	mu           sync.RWMutex
	handlers     map[string]Handler
	compensators map[string]Handler

	reporter Reporter
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	logger   *zap.Logger
	tracer   trace.Tracer
}

// LocalOption configures a Local executor.
type LocalOption func(*Local)

// WithLogger sets the executor logger.
func WithLogger(logger *zap.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

// WithRateLimit caps handler starts per second.
func WithRateLimit(perSecond float64, burst int) LocalOption {
	return func(l *Local) { l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewLocal creates a Local executor admitting at most workers concurrent
// handlers. Bind must be called with the engine before the first dispatch.
func NewLocal(workers int, opts ...LocalOption) *Local {
	if workers <= 0 {
		workers = 1
	}
	l := &Local{
		handlers:     make(map[string]Handler),
		compensators: make(map[string]Handler),
		sem:          semaphore.NewWeighted(int64(workers)),
		logger:       zap.NewNop(),
		tracer:       otel.Tracer("taskflow/executor"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "local_executor"))
	return l
}

// Bind wires the executor to the engine it reports outcomes to. Engine
// construction takes the executor, so binding happens after both exist.
func (l *Local) Bind(r Reporter) {
	l.reporter = r
}

// Register installs the handler for a task kind, replacing any previous
// one.
func (l *Local) Register(kind string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[kind] = h
}

// RegisterCompensator installs the compensating action for a task kind,
// invoked by the engine's rollback strategy.
func (l *Local) RegisterCompensator(kind string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.compensators[kind] = h
}

// Execute implements workflow.TaskExecutor. It validates the dispatch
// synchronously and runs the handler on its own goroutine, reporting the
// outcome through the bound Reporter.
func (l *Local) Execute(ctx context.Context, d workflow.Dispatch) error {
	l.mu.RLock()
	h, ok := l.handlers[d.Kind]
	reporter := l.reporter
	l.mu.RUnlock()

	if reporter == nil {
		return fmt.Errorf("executor is not bound to an engine")
	}
	if !ok {
		return fmt.Errorf("no handler registered for kind %q", d.Kind)
	}

	go l.run(ctx, h, d)
	return nil
}

func (l *Local) run(ctx context.Context, h Handler, d workflow.Dispatch) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		l.report(d, nil, fmt.Errorf("admission: %w", err))
		return
	}
	defer l.sem.Release(1)

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			l.report(d, nil, fmt.Errorf("rate limit: %w", err))
			return
		}
	}

	ctx, span := l.tracer.Start(ctx, "executor.run",
		trace.WithAttributes(
			attribute.String("workflow.id", d.WorkflowID),
			attribute.String("task.id", d.TaskID),
			attribute.String("task.kind", d.Kind),
			attribute.Int("task.attempt", d.Attempt),
		),
	)
	defer span.End()

	l.logger.Debug("running task",
		zap.String("workflow_id", d.WorkflowID),
		zap.String("task_id", d.TaskID),
		zap.String("kind", d.Kind),
	)

	results, err := h(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	l.report(d, results, err)
}

func (l *Local) report(d workflow.Dispatch, results map[string]any, err error) {
	res := workflow.Result{TaskID: d.TaskID, Success: err == nil, Results: results}
	if err != nil {
		res.Message = err.Error()
		res.Category = "executor"
	}
	if rerr := l.reporter.ReportResult(d.WorkflowID, res); rerr != nil {
		// Completion can race workflow cancellation; nothing to do beyond
		// logging, the engine keeps the authoritative record.
		l.logger.Warn("result not accepted",
			zap.String("workflow_id", d.WorkflowID),
			zap.String("task_id", d.TaskID),
			zap.Error(rerr),
		)
	}
}

// Compensate implements workflow.Compensator. Kinds without a registered
// compensator are a no-op.
func (l *Local) Compensate(ctx context.Context, d workflow.Dispatch) error {
	l.mu.RLock()
	h, ok := l.compensators[d.Kind]
	l.mu.RUnlock()
	if !ok {
		return nil
	}

	ctx, span := l.tracer.Start(ctx, "executor.compensate",
		trace.WithAttributes(
			attribute.String("workflow.id", d.WorkflowID),
			attribute.String("task.id", d.TaskID),
			attribute.String("task.kind", d.Kind),
		),
	)
	defer span.End()

	l.logger.Info("compensating task",
		zap.String("workflow_id", d.WorkflowID),
		zap.String("task_id", d.TaskID),
	)
	_, err := h(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

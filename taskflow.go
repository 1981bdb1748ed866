// Package taskflow provides a top-level convenience entry point for
// creating a workflow engine with minimal boilerplate.
//
// Usage:
//
//	eng, exec, err := taskflow.New()
//	exec.Register("report.generate", generateReport)
//	w, err := eng.CreateWorkflow(def)
//
// This wires a workflow.Engine to an in-process executor.Local and binds
// the two. Use the workflow and executor packages directly when you need
// more control.
package taskflow

import (
	"go.uber.org/zap"

	"github.com/campusops/taskflow/config"
	"github.com/campusops/taskflow/executor"
	"github.com/campusops/taskflow/internal/metrics"
	"github.com/campusops/taskflow/workflow"
)

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	cfg    *config.Config
	logger *zap.Logger
}

// WithConfig supplies a loaded configuration. Defaults apply otherwise.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger shared by the engine and executor.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a [workflow.Engine] bound to an [executor.Local] built from
// the configuration. Handlers still need to be registered on the returned
// executor before workflows that use their kinds are started.
func New(opts ...Option) (*workflow.Engine, *executor.Local, error) {
	o := &options{
		cfg:    config.DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	execOpts := []executor.LocalOption{executor.WithLogger(o.logger)}
	if o.cfg.Executor.RatePerSecond > 0 {
		execOpts = append(execOpts, executor.WithRateLimit(o.cfg.Executor.RatePerSecond, o.cfg.Executor.Burst))
	}
	exec := executor.NewLocal(o.cfg.Executor.Workers, execOpts...)

	engineOpts := []workflow.Option{workflow.WithLogger(o.logger)}
	if o.cfg.Engine.MetricsNamespace != "" {
		engineOpts = append(engineOpts, workflow.WithMetrics(metrics.NewCollector(o.cfg.Engine.MetricsNamespace, o.logger)))
	}
	eng := workflow.NewEngine(exec, engineOpts...)
	exec.Bind(eng)

	return eng, exec, nil
}

// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes the engine's Prometheus metrics.
type Collector struct {
	tasksDispatched  *prometheus.CounterVec
	tasksFinished    *prometheus.CounterVec
	taskRetries      *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	runningTasks     *prometheus.GaugeVec
	stateTransitions *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the engine metrics under the given namespace on
// the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.tasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Total number of task dispatches, retries included",
		},
		[]string{"kind"},
	)

	c.tasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of finished tasks by outcome",
		},
		[]string{"kind", "status"},
	)

	c.taskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Total number of task retries",
		},
		[]string{"kind"},
	)

	c.taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task duration from dispatch to reported outcome",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	c.runningTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_tasks",
			Help:      "Number of currently dispatched tasks per workflow",
		},
		[]string{"workflow"},
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_state_transitions_total",
			Help:      "Total number of workflow lifecycle transitions",
		},
		[]string{"from_state", "to_state"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordTaskDispatched counts one dispatch.
func (c *Collector) RecordTaskDispatched(kind string) {
	c.tasksDispatched.WithLabelValues(kind).Inc()
}

// RecordTaskFinished counts one finished task and observes its duration.
func (c *Collector) RecordTaskFinished(kind, status string, duration time.Duration) {
	c.tasksFinished.WithLabelValues(kind, status).Inc()
	c.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTaskRetry counts one retry.
func (c *Collector) RecordTaskRetry(kind string) {
	c.taskRetries.WithLabelValues(kind).Inc()
}

// SetRunningTasks updates the running-task gauge for a workflow.
func (c *Collector) SetRunningTasks(workflow string, n int) {
	c.runningTasks.WithLabelValues(workflow).Set(float64(n))
}

// RecordStateTransition counts one lifecycle transition.
func (c *Collector) RecordStateTransition(from, to string) {
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

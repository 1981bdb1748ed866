/*
Package workflow implements a DAG-based workflow orchestration engine.

# Overview

A Workflow is a set of named tasks connected by depends-on edges. The
Engine validates the graph (cycle detection, dangling references), then
schedules tasks whose dependencies have resolved, honoring the execution
mode (sequential or parallel with a cap) and the configured error strategy
(retry, continue, abort, rollback). Task execution itself is delegated to
an external TaskExecutor: the engine issues a Dispatch and returns, and the
executor reports the outcome back through Engine.ReportResult.

# Core types

  - Engine          — per-workflow coordinator: lifecycle, scheduling, errors
  - Workflow        — one orchestration instance owning tasks, edges,
    context, and audit trail
  - Task            — a unit of work; status, dependencies, retries, condition
  - Definition      — declarative workflow description (JSON/YAML)
  - Builder         — fluent construction API
  - TaskExecutor    — external collaborator running task logic
  - ConditionFunc   — opaque predicate over the shared context
  - Event           — immutable audit trail entry

# Lifecycle

Draft -> Validating -> Ready -> Running -> Paused/Completed/Failed/
Cancelled. Transitions run through a single table plus pluggable
TransitionGuard predicates; terminal states accept no further transitions.

# Concurrency

All scheduling decisions for a workflow are serialized under the
workflow's lock, so completion callbacks may arrive concurrently from any
number of executing tasks. The engine never blocks on task execution and
never dispatches a task whose dependencies are unresolved.
*/
package workflow

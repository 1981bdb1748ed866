// Package store provides pluggable persistence for workflow state and
// audit events. The engine's in-memory state stays authoritative; stores
// capture snapshots for observers and restarts, they are not a durability
// guarantee.
package store

import (
	"context"
	"time"

	"github.com/campusops/taskflow/workflow"
)

// TaskSnapshot is the persisted view of one task.
type TaskSnapshot struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Status     string   `json:"status"`
	RetryCount int      `json:"retry_count"`
	MaxRetries int      `json:"max_retries"`
	DependsOn  []string `json:"depends_on,omitempty"`
}

// WorkflowSnapshot is the persisted view of one workflow at a point in
// time.
type WorkflowSnapshot struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	State    string               `json:"state"`
	Mode     string               `json:"mode"`
	Strategy string               `json:"strategy"`
	Tasks    []TaskSnapshot       `json:"tasks"`
	Context  map[string]any       `json:"context,omitempty"`
	Errors   []workflow.TaskError `json:"errors,omitempty"`
	TakenAt  time.Time            `json:"taken_at"`
}

// Capture builds a snapshot from the workflow's current state.
func Capture(w *workflow.Workflow) WorkflowSnapshot {
	snap := WorkflowSnapshot{
		ID:       w.ID(),
		Name:     w.Name(),
		State:    string(w.State()),
		Mode:     string(w.Mode()),
		Strategy: string(w.Strategy()),
		Context:  w.ContextSnapshot(),
		Errors:   w.Errors(),
		TakenAt:  time.Now(),
	}
	for _, t := range w.Tasks() {
		snap.Tasks = append(snap.Tasks, TaskSnapshot{
			ID:         t.ID,
			Name:       t.Name,
			Kind:       t.Kind,
			Status:     string(t.Status),
			RetryCount: t.RetryCount,
			MaxRetries: t.MaxRetries,
			DependsOn:  t.DependsOn,
		})
	}
	return snap
}

// WorkflowStore persists workflow snapshots keyed by workflow ID. Save
// overwrites the previous snapshot for the same workflow.
type WorkflowStore interface {
	Save(ctx context.Context, snap WorkflowSnapshot) error
	Load(ctx context.Context, workflowID string) (WorkflowSnapshot, error)
	List(ctx context.Context) ([]WorkflowSnapshot, error)
}

// AuditSink persists audit events. Append preserves the engine's append
// order; sinks never reorder or prune.
type AuditSink interface {
	Append(ctx context.Context, workflowID string, events ...workflow.Event) error
	Events(ctx context.Context, workflowID string) ([]workflow.Event, error)
}

// ErrNotFound is returned when no snapshot exists for a workflow.
var ErrNotFound = workflow.NewError(workflow.ErrWorkflowNotFound, "no snapshot for workflow")

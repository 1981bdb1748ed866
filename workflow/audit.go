package workflow

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of audit event.
type EventType string

// Workflow lifecycle events
const (
	EventWorkflowCreated   EventType = "workflow_created"
	EventWorkflowValidated EventType = "workflow_validated"
	EventValidationFailed  EventType = "validation_failed"
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowPaused    EventType = "workflow_paused"
	EventWorkflowResumed   EventType = "workflow_resumed"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowCancelled EventType = "workflow_cancelled"
	EventWorkflowStalled   EventType = "workflow_stalled"
)

// Task events
const (
	EventTaskAdded          EventType = "task_added"
	EventDependencyAdded    EventType = "dependency_added"
	EventTaskWaiting        EventType = "task_waiting"
	EventTaskStarted        EventType = "task_started"
	EventTaskCompleted      EventType = "task_completed"
	EventTaskFailed         EventType = "task_failed"
	EventTaskRetried        EventType = "task_retried"
	EventTaskSkipped        EventType = "task_skipped"
	EventTaskCancelled      EventType = "task_cancelled"
	EventTaskCompensated    EventType = "task_compensated"
	EventConditionEvaluated EventType = "condition_evaluated"
)

// Event is one immutable entry in a workflow's audit trail. It is created
// once and never mutated or deleted.
type Event struct {
	// ID is the unique event identifier
	ID string `json:"id"`
	// Type classifies the event
	Type EventType `json:"type"`
	// TaskID is set for task-level events, empty for workflow-level ones
	TaskID string `json:"task_id,omitempty"`
	// Description is a free-text summary of what happened
	Description string `json:"description"`
	// Actor names who triggered the event
	Actor string `json:"actor"`
	// Timestamp is when the event was recorded
	Timestamp time.Time `json:"timestamp"`
}

// auditTrail is the append-only event log owned by a workflow. Callers only
// ever see copies; append order is preserved for the life of the workflow.
type auditTrail struct {
	events []Event
	clock  func() time.Time
}

func newAuditTrail(clock func() time.Time) *auditTrail {
	return &auditTrail{clock: clock}
}

// record appends one event and returns it. The trail is only ever written
// under the owning workflow's lock.
func (a *auditTrail) record(typ EventType, taskID, actor, description string) Event {
	ev := Event{
		ID:          uuid.NewString(),
		Type:        typ,
		TaskID:      taskID,
		Description: description,
		Actor:       actor,
		Timestamp:   a.clock(),
	}
	a.events = append(a.events, ev)
	return ev
}

// snapshot returns a copy of the trail in append order.
func (a *auditTrail) snapshot() []Event {
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

// byTask returns the events associated with one task, in append order.
func (a *auditTrail) byTask(taskID string) []Event {
	var out []Event
	for _, ev := range a.events {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out
}

// byType returns the events of one type, in append order.
func (a *auditTrail) byType(typ EventType) []Event {
	var out []Event
	for _, ev := range a.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

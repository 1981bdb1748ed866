package store

import (
	"context"
	"sync"

	"github.com/campusops/taskflow/workflow"
)

// Memory is an in-process WorkflowStore and AuditSink.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string]WorkflowSnapshot
	events    map[string][]workflow.Event
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]WorkflowSnapshot),
		events:    make(map[string][]workflow.Event),
	}
}

// Save implements WorkflowStore.
func (m *Memory) Save(_ context.Context, snap WorkflowSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ID] = snap
	return nil
}

// Load implements WorkflowStore.
func (m *Memory) Load(_ context.Context, workflowID string) (WorkflowSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[workflowID]
	if !ok {
		return WorkflowSnapshot{}, ErrNotFound
	}
	return snap, nil
}

// List implements WorkflowStore.
func (m *Memory) List(_ context.Context) ([]WorkflowSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WorkflowSnapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	return out, nil
}

// Append implements AuditSink.
func (m *Memory) Append(_ context.Context, workflowID string, events ...workflow.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[workflowID] = append(m.events[workflowID], events...)
	return nil
}

// Events implements AuditSink.
func (m *Memory) Events(_ context.Context, workflowID string) ([]workflow.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[workflowID]
	out := make([]workflow.Event, len(evs))
	copy(out, evs)
	return out, nil
}

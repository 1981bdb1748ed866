package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/campusops/taskflow/workflow"
)

const (
	auditKeyPrefix    = "taskflow:audit:"
	snapshotKeyPrefix = "taskflow:snapshot:"
)

// Redis is an AuditSink and context-snapshot store on a Redis list per
// workflow. Events are RPUSHed as JSON, so append order survives.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing Redis client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Append implements AuditSink.
func (r *Redis) Append(ctx context.Context, workflowID string, events ...workflow.Event) error {
	if len(events) == 0 {
		return nil
	}
	payloads := make([]any, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		payloads = append(payloads, data)
	}
	return r.client.RPush(ctx, auditKeyPrefix+workflowID, payloads...).Err()
}

// Events implements AuditSink.
func (r *Redis) Events(ctx context.Context, workflowID string) ([]workflow.Event, error) {
	raw, err := r.client.LRange(ctx, auditKeyPrefix+workflowID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]workflow.Event, 0, len(raw))
	for _, item := range raw {
		var ev workflow.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// SaveSnapshot stores a workflow snapshot as one JSON value.
func (r *Redis) SaveSnapshot(ctx context.Context, snap WorkflowSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, snapshotKeyPrefix+snap.ID, data, 0).Err()
}

// LoadSnapshot retrieves the snapshot for a workflow.
func (r *Redis) LoadSnapshot(ctx context.Context, workflowID string) (WorkflowSnapshot, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+workflowID).Bytes()
	if err == redis.Nil {
		return WorkflowSnapshot{}, ErrNotFound
	}
	if err != nil {
		return WorkflowSnapshot{}, err
	}
	var snap WorkflowSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return WorkflowSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/campusops/taskflow/workflow"
)

// workflowRecord is the GORM model for workflow snapshots. Task, context,
// and error payloads are stored as JSON blobs; querying happens by
// workflow ID only.
type workflowRecord struct {
	WorkflowID string    `gorm:"primaryKey;column:workflow_id"`
	Name       string    `gorm:"column:name"`
	State      string    `gorm:"column:state"`
	Mode       string    `gorm:"column:mode"`
	Strategy   string    `gorm:"column:strategy"`
	Tasks      []byte    `gorm:"column:tasks"`
	Context    []byte    `gorm:"column:context"`
	Errors     []byte    `gorm:"column:errors"`
	TakenAt    time.Time `gorm:"column:taken_at"`
	UpdatedAt  time.Time
}

func (workflowRecord) TableName() string { return "workflow_snapshots" }

// auditRecord is the GORM model for audit events. The Seq column preserves
// append order per workflow.
type auditRecord struct {
	Seq         uint64    `gorm:"primaryKey;autoIncrement"`
	WorkflowID  string    `gorm:"column:workflow_id;index"`
	EventID     string    `gorm:"column:event_id;uniqueIndex"`
	Type        string    `gorm:"column:type"`
	TaskID      string    `gorm:"column:task_id"`
	Description string    `gorm:"column:description"`
	Actor       string    `gorm:"column:actor"`
	Timestamp   time.Time `gorm:"column:timestamp"`
}

func (auditRecord) TableName() string { return "audit_events" }

// Gorm persists snapshots and audit events through a gorm.DB. The caller
// picks the dialector (sqlite in tests).
type Gorm struct {
	db *gorm.DB
}

// NewGorm migrates the schema and returns the store.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&workflowRecord{}, &auditRecord{}); err != nil {
		return nil, fmt.Errorf("migrate store schema: %w", err)
	}
	return &Gorm{db: db}, nil
}

// Save implements WorkflowStore.
func (g *Gorm) Save(ctx context.Context, snap WorkflowSnapshot) error {
	rec, err := recordFromSnapshot(snap)
	if err != nil {
		return err
	}
	return g.db.WithContext(ctx).Save(rec).Error
}

// Load implements WorkflowStore.
func (g *Gorm) Load(ctx context.Context, workflowID string) (WorkflowSnapshot, error) {
	var rec workflowRecord
	err := g.db.WithContext(ctx).First(&rec, "workflow_id = ?", workflowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WorkflowSnapshot{}, ErrNotFound
	}
	if err != nil {
		return WorkflowSnapshot{}, err
	}
	return snapshotFromRecord(rec)
}

// List implements WorkflowStore.
func (g *Gorm) List(ctx context.Context) ([]WorkflowSnapshot, error) {
	var recs []workflowRecord
	if err := g.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]WorkflowSnapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := snapshotFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Append implements AuditSink.
func (g *Gorm) Append(ctx context.Context, workflowID string, events ...workflow.Event) error {
	if len(events) == 0 {
		return nil
	}
	recs := make([]auditRecord, 0, len(events))
	for _, ev := range events {
		recs = append(recs, auditRecord{
			WorkflowID:  workflowID,
			EventID:     ev.ID,
			Type:        string(ev.Type),
			TaskID:      ev.TaskID,
			Description: ev.Description,
			Actor:       ev.Actor,
			Timestamp:   ev.Timestamp,
		})
	}
	return g.db.WithContext(ctx).Create(&recs).Error
}

// Events implements AuditSink.
func (g *Gorm) Events(ctx context.Context, workflowID string) ([]workflow.Event, error) {
	var recs []auditRecord
	err := g.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("seq asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]workflow.Event, 0, len(recs))
	for _, rec := range recs {
		out = append(out, workflow.Event{
			ID:          rec.EventID,
			Type:        workflow.EventType(rec.Type),
			TaskID:      rec.TaskID,
			Description: rec.Description,
			Actor:       rec.Actor,
			Timestamp:   rec.Timestamp,
		})
	}
	return out, nil
}

func recordFromSnapshot(snap WorkflowSnapshot) (*workflowRecord, error) {
	tasks, err := json.Marshal(snap.Tasks)
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}
	ctxBlob, err := json.Marshal(snap.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	errBlob, err := json.Marshal(snap.Errors)
	if err != nil {
		return nil, fmt.Errorf("marshal errors: %w", err)
	}
	return &workflowRecord{
		WorkflowID: snap.ID,
		Name:       snap.Name,
		State:      snap.State,
		Mode:       snap.Mode,
		Strategy:   snap.Strategy,
		Tasks:      tasks,
		Context:    ctxBlob,
		Errors:     errBlob,
		TakenAt:    snap.TakenAt,
	}, nil
}

func snapshotFromRecord(rec workflowRecord) (WorkflowSnapshot, error) {
	snap := WorkflowSnapshot{
		ID:       rec.WorkflowID,
		Name:     rec.Name,
		State:    rec.State,
		Mode:     rec.Mode,
		Strategy: rec.Strategy,
		TakenAt:  rec.TakenAt,
	}
	if err := json.Unmarshal(rec.Tasks, &snap.Tasks); err != nil {
		return WorkflowSnapshot{}, fmt.Errorf("unmarshal tasks: %w", err)
	}
	if err := json.Unmarshal(rec.Context, &snap.Context); err != nil {
		return WorkflowSnapshot{}, fmt.Errorf("unmarshal context: %w", err)
	}
	if err := json.Unmarshal(rec.Errors, &snap.Errors); err != nil {
		return WorkflowSnapshot{}, fmt.Errorf("unmarshal errors: %w", err)
	}
	return snap, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunStatus is the lifecycle state of one executor run
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// AuditRecord is the durable row describing one run. It is inserted with
// status running when the run starts and updated exactly once with a
// terminal status when the run ends.
type AuditRecord struct {
	RunID     uuid.UUID `gorm:"column:run_id;type:uuid;primaryKey" json:"run_id"`
	Agent     string    `gorm:"column:agent;type:varchar(255);not null;index:idx_audit_records_agent" json:"agent"`
	Action    string    `gorm:"column:action;type:varchar(255);not null" json:"action"`
	Objective string    `gorm:"column:objective;type:text" json:"objective,omitempty"`
	// Plan is the full execution plan snapshot as submitted by the caller
	Plan map[string]interface{} `gorm:"column:plan;type:text;serializer:json" json:"plan,omitempty"`
	// Artifacts is the structured result returned by the action handler
	Artifacts    map[string]interface{} `gorm:"column:artifacts;type:text;serializer:json" json:"artifacts,omitempty"`
	Status       RunStatus              `gorm:"column:status;type:varchar(50);not null;index:idx_audit_records_status" json:"status"`
	ErrorMessage *string                `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	UserID       string                 `gorm:"column:user_id;type:varchar(255);index:idx_audit_records_user_id" json:"user,omitempty"`
	// ApprovalID links the run to the approval it consumed, if any
	ApprovalID  *uuid.UUID `gorm:"column:approval_id;type:uuid" json:"approval_id,omitempty"`
	StartedAt   time.Time  `gorm:"column:started_at;not null;index:idx_audit_records_started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	// DurationMS is wall-clock milliseconds from start to terminal update
	DurationMS *int64 `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
}

// TableName specifies the table name for GORM
func (*AuditRecord) TableName() string {
	return "audit_records"
}

// BeforeCreate hook to set default values
func (r *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if r.RunID == uuid.Nil {
		r.RunID = uuid.New()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	return nil
}

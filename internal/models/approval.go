package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is the stored lifecycle state of an approval request
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExecuted ApprovalStatus = "executed"
	// ApprovalExpired is a read-time projection, never written by the
	// service: a request is expired the moment now > ExpiresAt regardless of
	// what status the row still carries.
	ApprovalExpired ApprovalStatus = "expired"
)

// ApprovalDecision values accepted by the decide operation
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// ApprovalRequest is one human-approval record. It is created pending,
// decided exactly once, and consumed at most once by a successful run.
type ApprovalRequest struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	// Agent and Action must match the run that consumes this approval
	Agent  string `gorm:"column:agent;type:varchar(255);not null;index:idx_approval_requests_agent" json:"agent"`
	Action string `gorm:"column:action;type:varchar(255);not null" json:"action"`
	// Context is an opaque snapshot of the decision context at request time
	Context     map[string]interface{} `gorm:"column:context;type:text;serializer:json" json:"context,omitempty"`
	Reason      string                 `gorm:"column:reason;type:text" json:"reason,omitempty"`
	RequestedBy string                 `gorm:"column:requested_by;type:varchar(255)" json:"requested_by,omitempty"`
	RequestedAt time.Time              `gorm:"column:requested_at;not null" json:"requested_at"`
	ExpiresAt   time.Time              `gorm:"column:expires_at;not null;index:idx_approval_requests_expires_at" json:"expires_at"`
	Status      ApprovalStatus         `gorm:"column:status;type:varchar(50);not null;index:idx_approval_requests_status" json:"status"`
	// Decision, Approver, DecidedAt, Comment and Signature are set together
	// by the decide operation and never change afterwards
	Decision  *string    `gorm:"column:decision;type:varchar(50)" json:"decision,omitempty"`
	Approver  *string    `gorm:"column:approver;type:varchar(255)" json:"approver,omitempty"`
	DecidedAt *time.Time `gorm:"column:decided_at" json:"decided_at,omitempty"`
	Comment   *string    `gorm:"column:comment;type:text" json:"comment,omitempty"`
	// Signature is an HMAC over {id, decision, approver, expires_at}
	Signature *string `gorm:"column:signature;type:varchar(255)" json:"signature,omitempty"`
}

// TableName specifies the table name for GORM
func (*ApprovalRequest) TableName() string {
	return "approval_requests"
}

// Expired reports whether the request is past its expiry at the given time.
func (a *ApprovalRequest) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// EffectiveStatus returns the status a reader should display: the stored
// status, or expired when the request ran out of time while still pending
// or approved. This is a computed projection, not a stored transition.
func (a *ApprovalRequest) EffectiveStatus(now time.Time) ApprovalStatus {
	if a.Expired(now) && (a.Status == ApprovalPending || a.Status == ApprovalApproved) {
		return ApprovalExpired
	}
	return a.Status
}

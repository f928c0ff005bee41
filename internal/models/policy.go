package models

import (
	"time"

	"github.com/google/uuid"
)

// PolicyEffect is the outcome a matched rule produces
type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// Priority bounds for policy rules
const (
	MinRulePriority = 0
	MaxRulePriority = 1000
)

// PolicyRule is a single authorization rule. Rules are immutable once loaded
// into the engine; updates replace the whole set atomically.
type PolicyRule struct {
	// ID is unique within a rule set
	ID string `json:"id"`
	// Agent pattern: "*" matches any agent, otherwise exact match
	Agent string `json:"agent"`
	// Action pattern: "*" matches any action, otherwise exact match
	Action string `json:"action"`
	// Conditions are ANDed against the decision context. A numeric value is a
	// threshold (context value must be >= it); any other value must be equal.
	Conditions map[string]interface{} `json:"conditions,omitempty"`
	Effect     PolicyEffect           `json:"effect"`
	Reason     string                 `json:"reason,omitempty"`
	// Priority 0-1000; the highest-priority matching rule wins
	Priority int `json:"priority"`
	// ApprovalEligible controls whether a deny from this rule can be
	// overridden by a signed human approval. Defaults to true for denies.
	ApprovalEligible *bool `json:"approval_eligible,omitempty"`
}

// PolicyDecision is the result of evaluating one (agent, action, context)
// triple against the active rule set. Produced fresh per evaluation.
type PolicyDecision struct {
	Effect           PolicyEffect `json:"effect"`
	RuleID           string       `json:"rule_id,omitempty"`
	Reason           string       `json:"reason"`
	RequiresApproval bool         `json:"requires_approval"`
}

// Allowed reports whether the decision permits the action outright.
func (d PolicyDecision) Allowed() bool {
	return d.Effect == EffectAllow
}

// PolicySnapshot is a persisted, versioned rule set. Exactly one snapshot is
// active at a time; replacing the rule set inserts a new active snapshot and
// deactivates the previous one in the same transaction.
type PolicySnapshot struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	// Version is monotonically increasing across snapshots
	Version int64        `gorm:"column:version;not null;index:idx_policy_snapshots_version" json:"version"`
	Rules   []PolicyRule `gorm:"column:rules;type:text;serializer:json;not null" json:"rules"`
	// Budgets caps runs per agent per day; enforced by a registered validator
	Budgets   map[string]int `gorm:"column:budgets;type:text;serializer:json" json:"budgets,omitempty"`
	Active    bool           `gorm:"column:active;not null;index:idx_policy_snapshots_active" json:"active"`
	UpdatedBy string         `gorm:"column:updated_by;type:varchar(255)" json:"updated_by,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (*PolicySnapshot) TableName() string {
	return "policy_snapshots"
}

package policy

import "github.com/leok974/ApplyLens-sub019/internal/models"

// DefaultRules is the rule set seeded when the store has no active
// snapshot. It keeps the destructive inbox operations behind approval and
// blocks obviously risky automation outright.
func DefaultRules() []models.PolicyRule {
	notEligible := false
	return []models.PolicyRule{
		{
			ID:       "deny-delete",
			Agent:    "*",
			Action:   "delete",
			Effect:   models.EffectDeny,
			Reason:   "permanent deletes require human approval",
			Priority: 100,
		},
		{
			ID:         "deny-high-risk-quarantine",
			Agent:      "inbox_triage",
			Action:     "quarantine",
			Conditions: map[string]interface{}{"risk_score": 90},
			Effect:     models.EffectDeny,
			Reason:     "very high risk emails are escalated, not auto-quarantined",
			Priority:   80,
		},
		{
			ID:               "deny-bulk-unsubscribe",
			Agent:            "inbox_triage",
			Action:           "unsubscribe",
			Conditions:       map[string]interface{}{"batch_size": 25},
			Effect:           models.EffectDeny,
			Reason:           "bulk unsubscribe batches are capped",
			Priority:         70,
			ApprovalEligible: &notEligible,
		},
		{
			ID:         "deny-auto-apply",
			Agent:      "application",
			Action:     "apply",
			Conditions: map[string]interface{}{"auto_submit": true},
			Effect:     models.EffectDeny,
			Reason:     "unattended job submissions need a human decision",
			Priority:   60,
		},
	}
}

// DefaultBudgets caps runs per agent per day for the seeded snapshot.
func DefaultBudgets() map[string]int {
	return map[string]int{
		"inbox_triage": 200,
		"application":  25,
	}
}

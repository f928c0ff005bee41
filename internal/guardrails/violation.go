package guardrails

import "fmt"

// ViolationType classifies a guardrail failure
type ViolationType string

const (
	// Pre-execution violations abort the run before any side effect
	PolicyDenied     ViolationType = "policy_denied"
	ApprovalRequired ViolationType = "approval_required"
	MissingParameter ViolationType = "missing_parameter"

	// Post-execution violations are logged; the action already happened
	InvalidResult ViolationType = "invalid_result"
	InvalidMetric ViolationType = "invalid_metric"
)

// Violation is a structured guardrail failure. Message is suitable for
// direct display; Details carries the machine-readable context.
type Violation struct {
	Message string                 `json:"message"`
	Type    ViolationType          `json:"violation_type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Type, v.Message)
}

// Fatal reports whether the violation belongs to the pre-execution class
// that must abort a run.
func (v *Violation) Fatal() bool {
	switch v.Type {
	case PolicyDenied, ApprovalRequired, MissingParameter:
		return true
	}
	return false
}

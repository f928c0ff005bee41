package models

// ExecutionPlan is the caller-submitted description of one agent run.
// Context feeds the policy decision; Params feed the action handler and the
// required-parameter check (a key may live in either).
type ExecutionPlan struct {
	Agent     string                 `json:"agent"`
	Action    string                 `json:"action"`
	Objective string                 `json:"objective,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
	User      string                 `json:"user,omitempty"`
}

// Snapshot flattens the plan into the shape stored on the audit record.
func (p *ExecutionPlan) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"agent":  p.Agent,
		"action": p.Action,
	}
	if p.Objective != "" {
		snap["objective"] = p.Objective
	}
	if len(p.Context) > 0 {
		snap["context"] = p.Context
	}
	if len(p.Params) > 0 {
		snap["params"] = p.Params
	}
	return snap
}

// CreateApprovalRequest is the body of POST /approvals
type CreateApprovalRequest struct {
	Agent            string                 `json:"agent"`
	Action           string                 `json:"action"`
	Context          map[string]interface{} `json:"context,omitempty"`
	Reason           string                 `json:"reason,omitempty"`
	RequestedBy      string                 `json:"requested_by,omitempty"`
	ExpiresInSeconds int                    `json:"expires_in_seconds,omitempty"`
}

// DecideApprovalRequest is the body of POST /approvals/{id}/approve.
// Signature is accepted so callers may echo the documented body shape, but
// it is ignored: the server always computes the stored signature itself.
type DecideApprovalRequest struct {
	Decision  string `json:"decision"`
	Approver  string `json:"approver,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// VerifySignatureRequest is the body of POST /approvals/{id}/verify
type VerifySignatureRequest struct {
	Signature string `json:"signature"`
}

// VerifySignatureResponse is the response of POST /approvals/{id}/verify
type VerifySignatureResponse struct {
	Valid bool `json:"valid"`
}

// ExecuteRequest is the body of POST /agents/execute
type ExecuteRequest struct {
	Plan       ExecutionPlan `json:"plan"`
	ApprovalID string        `json:"approval_id,omitempty"`
}

// ExecuteResponse wraps a successful run result
type ExecuteResponse struct {
	RunID     string                 `json:"run_id"`
	Status    RunStatus              `json:"status"`
	Artifacts map[string]interface{} `json:"artifacts,omitempty"`
}

// ReplacePolicyRequest is the body of PUT /policy
type ReplacePolicyRequest struct {
	Rules   []PolicyRule   `json:"rules"`
	Budgets map[string]int `json:"budgets,omitempty"`
}

// PolicyResponse is the response of GET /policy
type PolicyResponse struct {
	Version int64          `json:"version"`
	Rules   []PolicyRule   `json:"rules"`
	Budgets map[string]int `json:"budgets,omitempty"`
}

// HistoryResponse is the paginated response of GET /agents/history
type HistoryResponse struct {
	Records []AuditRecord `json:"records"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

package guardrails

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// PolicyDecider is the slice of the policy engine guardrails consume
type PolicyDecider interface {
	Decide(agent, action string, context map[string]interface{}) models.PolicyDecision
}

// ApprovalSource is the slice of the approval service guardrails consume.
// Guardrails only read and verify; consumption belongs to the executor.
type ApprovalSource interface {
	Get(ctx context.Context, id string) (*models.ApprovalRequest, error)
	Verify(ctx context.Context, id, signature string) bool
}

// Guardrails wraps every run with a blocking pre-execution check and a
// warn-only post-execution check.
type Guardrails struct {
	policy    PolicyDecider
	approvals ApprovalSource
	params    ParamTable
	now       func() time.Time
}

// New creates guardrails over the given policy engine, approval source and
// required-parameter table.
func New(policy PolicyDecider, approvals ApprovalSource, params ParamTable) *Guardrails {
	return &Guardrails{
		policy:    policy,
		approvals: approvals,
		params:    params,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (g *Guardrails) WithClock(now func() time.Time) *Guardrails {
	g.now = now
	return g
}

// PreExecution validates a plan before any side effect. Checks run in a
// fixed order and the first failure wins: policy denial, approval
// requirement, then required parameters. The returned decision labels the
// run for audit and metrics.
func (g *Guardrails) PreExecution(ctx context.Context, plan *models.ExecutionPlan, approvalID string) (models.PolicyDecision, error) {
	decision := g.policy.Decide(plan.Agent, plan.Action, plan.Context)

	if decision.Effect == models.EffectDeny && !decision.RequiresApproval {
		return decision, &Violation{
			Type:    PolicyDenied,
			Message: fmt.Sprintf("policy denied %s.%s: %s", plan.Agent, plan.Action, decision.Reason),
			Details: map[string]interface{}{
				"rule_id": decision.RuleID,
				"reason":  decision.Reason,
			},
		}
	}

	if decision.Effect == models.EffectDeny && decision.RequiresApproval {
		if err := g.checkApproval(ctx, plan, approvalID, decision); err != nil {
			return decision, err
		}
	}

	if err := g.checkRequiredParams(plan); err != nil {
		return decision, err
	}

	return decision, nil
}

// checkApproval requires a decided, signed, unconsumed, unexpired approval
// whose agent and action match the plan.
func (g *Guardrails) checkApproval(ctx context.Context, plan *models.ExecutionPlan, approvalID string, decision models.PolicyDecision) error {
	details := map[string]interface{}{
		"rule_id":        decision.RuleID,
		"reason":         decision.Reason,
		"how_to_request": "POST /approvals",
	}
	fail := func(msg string) error {
		return &Violation{Type: ApprovalRequired, Message: msg, Details: details}
	}

	if approvalID == "" {
		return fail(fmt.Sprintf("action %s.%s requires human approval and none was supplied", plan.Agent, plan.Action))
	}
	details["approval_id"] = approvalID

	record, err := g.approvals.Get(ctx, approvalID)
	if err != nil {
		return fail(fmt.Sprintf("approval %s not found", approvalID))
	}
	if record.Status != models.ApprovalApproved {
		details["status"] = record.Status
		return fail(fmt.Sprintf("approval %s is %s, not approved", approvalID, record.Status))
	}
	if record.Expired(g.now()) {
		details["expires_at"] = record.ExpiresAt
		return fail(fmt.Sprintf("approval %s expired at %s", approvalID, record.ExpiresAt.Format(time.RFC3339)))
	}
	if record.Agent != plan.Agent || record.Action != plan.Action {
		details["approved_agent"] = record.Agent
		details["approved_action"] = record.Action
		return fail(fmt.Sprintf("approval %s covers %s.%s, not %s.%s",
			approvalID, record.Agent, record.Action, plan.Agent, plan.Action))
	}
	if record.Signature == nil || !g.approvals.Verify(ctx, approvalID, *record.Signature) {
		return fail(fmt.Sprintf("approval %s has a missing or invalid signature", approvalID))
	}
	return nil
}

// checkRequiredParams verifies every required key for the action is present
// in either the plan context or its params.
func (g *Guardrails) checkRequiredParams(plan *models.ExecutionPlan) error {
	required, ok := g.params[plan.Action]
	if !ok {
		return nil
	}
	provided := make([]string, 0, len(plan.Context)+len(plan.Params))
	for key := range plan.Context {
		provided = append(provided, key)
	}
	for key := range plan.Params {
		provided = append(provided, key)
	}
	sort.Strings(provided)

	for _, key := range required {
		if _, inCtx := plan.Context[key]; inCtx {
			continue
		}
		if _, inParams := plan.Params[key]; inParams {
			continue
		}
		return &Violation{
			Type:    MissingParameter,
			Message: fmt.Sprintf("action %s requires parameter %q", plan.Action, key),
			Details: map[string]interface{}{
				"parameter": key,
				"required":  required,
				"provided":  provided,
			},
		}
	}
	return nil
}

// PostExecution validates the shape of an action result. The first failure
// is returned; the caller logs it and never rolls back the action.
func (g *Guardrails) PostExecution(agent, action string, result map[string]interface{}) error {
	if len(result) == 0 {
		return &Violation{
			Type:    InvalidResult,
			Message: fmt.Sprintf("action %s.%s returned an empty or unstructured result", agent, action),
		}
	}
	for _, field := range []string{"operations", "cost"} {
		value, ok := result[field]
		if !ok {
			continue
		}
		num, isNum := toNumber(value)
		if !isNum || num != math.Trunc(num) || num < 0 {
			return &Violation{
				Type:    InvalidMetric,
				Message: fmt.Sprintf("action %s.%s reported %s=%v, want a non-negative integer", agent, action, field, value),
				Details: map[string]interface{}{"field": field, "value": value},
			}
		}
	}
	return nil
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

package guardrails

import (
	"context"
	"fmt"
	"time"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// Request is what a custom validator sees: the plan and the policy decision
// the built-in checks already produced.
type Request struct {
	Plan     *models.ExecutionPlan
	Decision models.PolicyDecision
}

// Validator is a pluggable pre-execution check. Custom gates (budgets,
// business hours, rate limits) are added by registering validators on the
// executor, not by wrapping the guardrails themselves.
type Validator interface {
	Name() string
	Validate(ctx context.Context, req *Request) error
}

// RunCounter reports how many runs an agent has started since a point in
// time. The audit service satisfies this.
type RunCounter interface {
	CountRunsSince(ctx context.Context, agent string, since time.Time) (int64, error)
}

// BudgetValidator blocks an agent once it has used its daily run budget.
// Budgets come from the active policy snapshot; agents without an entry are
// unlimited.
type BudgetValidator struct {
	budgets func() map[string]int
	runs    RunCounter
	now     func() time.Time
}

// NewBudgetValidator creates a budget validator. The budgets func is called
// per validation so a policy replace takes effect immediately.
func NewBudgetValidator(budgets func() map[string]int, runs RunCounter) *BudgetValidator {
	return &BudgetValidator{
		budgets: budgets,
		runs:    runs,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (v *BudgetValidator) WithClock(now func() time.Time) *BudgetValidator {
	v.now = now
	return v
}

func (v *BudgetValidator) Name() string { return "daily_budget" }

func (v *BudgetValidator) Validate(ctx context.Context, req *Request) error {
	limit, ok := v.budgets()[req.Plan.Agent]
	if !ok || limit <= 0 {
		return nil
	}
	now := v.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	used, err := v.runs.CountRunsSince(ctx, req.Plan.Agent, midnight)
	if err != nil {
		return fmt.Errorf("failed to count runs for budget check: %w", err)
	}
	// The audit record for the current run is already written when
	// validators fire, so the count includes this run: strictly-greater
	// lets exactly `limit` runs through per day.
	if used > int64(limit) {
		return &Violation{
			Type:    PolicyDenied,
			Message: fmt.Sprintf("agent %s exhausted its daily budget of %d runs", req.Plan.Agent, limit),
			Details: map[string]interface{}{
				"budget": limit,
				"used":   used,
			},
		}
	}
	return nil
}

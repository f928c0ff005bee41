package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leok974/ApplyLens-sub019/internal/audit"
	"github.com/leok974/ApplyLens-sub019/internal/events"
	"github.com/leok974/ApplyLens-sub019/internal/guardrails"
	"github.com/leok974/ApplyLens-sub019/internal/models"
	"github.com/leok974/ApplyLens-sub019/internal/monitoring"
)

// ApprovalConsumer is the slice of the approval service the runner needs:
// marking a consumed approval as executed after a successful run.
type ApprovalConsumer interface {
	Consume(ctx context.Context, id string) error
}

// Runner orchestrates one agent run: guardrails, handler invocation, audit
// record, live events and metrics. Runs are independent; there is no
// cross-run locking.
type Runner struct {
	guards     *guardrails.Guardrails
	registry   *Registry
	audit      *audit.Service
	bus        *events.Bus
	approvals  ApprovalConsumer
	metrics    *monitoring.Metrics
	validators []guardrails.Validator
	now        func() time.Time
}

// NewRunner wires an executor from its collaborators. metrics may be nil.
func NewRunner(guards *guardrails.Guardrails, registry *Registry, auditSvc *audit.Service, bus *events.Bus, approvals ApprovalConsumer, metrics *monitoring.Metrics) *Runner {
	return &Runner{
		guards:    guards,
		registry:  registry,
		audit:     auditSvc,
		bus:       bus,
		approvals: approvals,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterValidator appends a custom pre-execution validator. Validators
// run after the built-in guardrail checks, in registration order.
func (r *Runner) RegisterValidator(v guardrails.Validator) {
	r.validators = append(r.validators, v)
}

// ValidateStartup cross-checks the required-parameter table against the
// handler registry so a misconfigured action surfaces at boot, not at the
// first run.
func (r *Runner) ValidateStartup(params guardrails.ParamTable) []string {
	var missing []string
	for _, action := range params.Actions() {
		if !r.registry.HasAction(action) {
			missing = append(missing, action)
		}
	}
	return missing
}

// Execute runs one plan through the full governance sequence. On success it
// returns the handler's artifacts; the caller also receives the run id via
// the audit record. Pre-execution violations abort before the handler runs;
// post-execution violations are logged only.
func (r *Runner) Execute(ctx context.Context, plan *models.ExecutionPlan, approvalID string) (uuid.UUID, map[string]interface{}, error) {
	record := &models.AuditRecord{
		RunID:     uuid.New(),
		Agent:     plan.Agent,
		Action:    plan.Action,
		Objective: plan.Objective,
		Plan:      plan.Snapshot(),
		UserID:    plan.User,
		StartedAt: r.now(),
	}
	if approvalID != "" {
		if parsed, err := uuid.Parse(approvalID); err == nil {
			record.ApprovalID = &parsed
		}
	}
	logger := slog.With("run_id", record.RunID, "agent", plan.Agent, "action", plan.Action)

	if err := r.audit.Begin(ctx, record); err != nil {
		// A history gap, not a run failure: the synchronous caller still
		// gets the real result.
		logger.Error("Failed to write audit record at run start", "error", err)
		r.metrics.IncAuditWriteFailure(ctx)
	}

	r.bus.Publish(models.AgentEvent{
		Type:      models.EventRunStarted,
		RunID:     record.RunID.String(),
		Agent:     plan.Agent,
		Action:    plan.Action,
		Timestamp: r.now(),
		Plan:      record.Plan,
	})

	decision, err := r.guards.PreExecution(ctx, plan, approvalID)
	if err == nil {
		err = r.runValidators(ctx, plan, decision)
	}
	if err != nil {
		logger.Warn("Run blocked before execution", "error", err)
		r.finishFailed(ctx, record, err)
		return record.RunID, nil, err
	}

	handler, ok := r.registry.Lookup(plan.Agent, plan.Action)
	if !ok {
		err := &ActionError{Agent: plan.Agent, Action: plan.Action,
			Err: errors.New("no handler registered")}
		r.finishFailed(ctx, record, err)
		return record.RunID, nil, err
	}

	artifacts, handlerErr := handler(ctx, plan)
	if handlerErr != nil {
		actionErr := &ActionError{Agent: plan.Agent, Action: plan.Action, Err: handlerErr}
		logger.Error("Action handler failed", "error", handlerErr)
		r.finishFailed(ctx, record, actionErr)
		return record.RunID, nil, actionErr
	}

	// Post-execution violations never change the terminal status; the
	// action already happened.
	if postErr := r.guards.PostExecution(plan.Agent, plan.Action, artifacts); postErr != nil {
		logger.Warn("Post-execution validation failed", "error", postErr)
	}

	completedAt := r.now()
	if err := r.audit.Complete(ctx, record.RunID, models.RunSuccess, artifacts, ""); err != nil {
		logger.Error("Failed to write audit record at run end", "error", err)
		r.metrics.IncAuditWriteFailure(ctx)
	}

	r.bus.Publish(models.AgentEvent{
		Type:      models.EventRunFinished,
		RunID:     record.RunID.String(),
		Agent:     plan.Agent,
		Action:    plan.Action,
		Timestamp: completedAt,
		Artifacts: artifacts,
	})

	if approvalID != "" {
		if err := r.approvals.Consume(ctx, approvalID); err != nil {
			logger.Error("Failed to consume approval after successful run",
				"approval_id", approvalID, "error", err)
		}
	}

	r.metrics.RecordRun(ctx, plan.Agent, string(models.RunSuccess))
	r.metrics.ObserveRunDuration(ctx, plan.Agent, completedAt.Sub(record.StartedAt).Seconds())
	logger.Info("Run finished", "duration", completedAt.Sub(record.StartedAt))
	return record.RunID, artifacts, nil
}

// runValidators applies registered custom validators in order; the first
// failure wins, matching the built-in short-circuit behavior.
func (r *Runner) runValidators(ctx context.Context, plan *models.ExecutionPlan, decision models.PolicyDecision) error {
	req := &guardrails.Request{Plan: plan, Decision: decision}
	for _, v := range r.validators {
		if err := v.Validate(ctx, req); err != nil {
			return fmt.Errorf("validator %s: %w", v.Name(), err)
		}
	}
	return nil
}

// finishFailed writes the terminal failed state: audit update, run_failed
// event, failure counter.
func (r *Runner) finishFailed(ctx context.Context, record *models.AuditRecord, cause error) {
	if err := r.audit.Complete(ctx, record.RunID, models.RunFailed, nil, cause.Error()); err != nil {
		slog.Error("Failed to write audit record for failed run",
			"run_id", record.RunID, "error", err)
		r.metrics.IncAuditWriteFailure(ctx)
	}
	r.bus.Publish(models.AgentEvent{
		Type:      models.EventRunFailed,
		RunID:     record.RunID.String(),
		Agent:     record.Agent,
		Action:    record.Action,
		Timestamp: r.now(),
		Error:     cause.Error(),
	})
	r.metrics.RecordRun(ctx, record.Agent, string(models.RunFailed))
}

package guardrails

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

type stubRunCounter struct {
	count int64
	err   error
	since time.Time
}

func (s *stubRunCounter) CountRunsSince(_ context.Context, _ string, since time.Time) (int64, error) {
	s.since = since
	return s.count, s.err
}

func budgetRequest(agent string) *Request {
	return &Request{Plan: &models.ExecutionPlan{Agent: agent, Action: "label"}}
}

func TestBudgetValidator(t *testing.T) {
	budgets := map[string]int{"inbox_triage": 5}
	ctx := context.Background()

	t.Run("within budget passes", func(t *testing.T) {
		// The count includes the in-flight run, so the 5th run of a
		// 5-run budget reports 5 and passes.
		counter := &stubRunCounter{count: 5}
		v := NewBudgetValidator(func() map[string]int { return budgets }, counter)
		assert.NoError(t, v.Validate(ctx, budgetRequest("inbox_triage")))
	})

	t.Run("over budget blocks with policy_denied", func(t *testing.T) {
		counter := &stubRunCounter{count: 6}
		v := NewBudgetValidator(func() map[string]int { return budgets }, counter)
		err := v.Validate(ctx, budgetRequest("inbox_triage"))
		var violation *Violation
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, PolicyDenied, violation.Type)
		assert.Equal(t, 5, violation.Details["budget"])
	})

	t.Run("agent without budget is unlimited", func(t *testing.T) {
		counter := &stubRunCounter{count: 10000}
		v := NewBudgetValidator(func() map[string]int { return budgets }, counter)
		assert.NoError(t, v.Validate(ctx, budgetRequest("application")))
	})

	t.Run("window starts at utc midnight", func(t *testing.T) {
		counter := &stubRunCounter{}
		now := time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)
		v := NewBudgetValidator(func() map[string]int { return budgets }, counter).
			WithClock(func() time.Time { return now })
		require.NoError(t, v.Validate(ctx, budgetRequest("inbox_triage")))
		assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), counter.since)
	})

	t.Run("counter failure surfaces", func(t *testing.T) {
		counter := &stubRunCounter{err: errors.New("db down")}
		v := NewBudgetValidator(func() map[string]int { return budgets }, counter)
		assert.Error(t, v.Validate(ctx, budgetRequest("inbox_triage")))
	})
}

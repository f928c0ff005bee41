package policy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

func TestEngine_DefaultAllow(t *testing.T) {
	engine, err := NewEngine(nil)
	require.NoError(t, err)

	decision := engine.Decide("inbox_triage", "label", map[string]interface{}{"risk_score": 10})
	assert.Equal(t, models.EffectAllow, decision.Effect)
	assert.Empty(t, decision.RuleID)
	assert.False(t, decision.RequiresApproval)
}

func TestEngine_PriorityWinsOverSpecificity(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{ID: "deny-all-deletes", Agent: "*", Action: "delete", Effect: models.EffectDeny, Priority: 100},
		{ID: "allow-admin-deletes", Agent: "admin", Action: "delete", Effect: models.EffectAllow, Priority: 50},
	})
	require.NoError(t, err)

	decision := engine.Decide("admin", "delete", nil)
	assert.Equal(t, models.EffectDeny, decision.Effect)
	assert.Equal(t, "deny-all-deletes", decision.RuleID)
}

func TestEngine_TieBreakIsDefinitionOrder(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{ID: "first", Agent: "*", Action: "label", Effect: models.EffectAllow, Priority: 10},
		{ID: "second", Agent: "*", Action: "label", Effect: models.EffectDeny, Priority: 10},
	})
	require.NoError(t, err)

	decision := engine.Decide("inbox_triage", "label", nil)
	assert.Equal(t, "first", decision.RuleID)
	assert.Equal(t, models.EffectAllow, decision.Effect)
}

func TestEngine_NumericConditionIsThreshold(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{
			ID:         "deny-risky",
			Agent:      "*",
			Action:     "quarantine",
			Conditions: map[string]interface{}{"risk_score": 70},
			Effect:     models.EffectDeny,
			Priority:   50,
		},
	})
	require.NoError(t, err)

	t.Run("at or above threshold matches", func(t *testing.T) {
		decision := engine.Decide("inbox_triage", "quarantine", map[string]interface{}{"risk_score": 85})
		assert.Equal(t, models.EffectDeny, decision.Effect)
		assert.Equal(t, "deny-risky", decision.RuleID)

		decision = engine.Decide("inbox_triage", "quarantine", map[string]interface{}{"risk_score": 70.0})
		assert.Equal(t, models.EffectDeny, decision.Effect)
	})

	t.Run("below threshold falls through to default allow", func(t *testing.T) {
		decision := engine.Decide("inbox_triage", "quarantine", map[string]interface{}{"risk_score": 50})
		assert.Equal(t, models.EffectAllow, decision.Effect)
		assert.Empty(t, decision.RuleID)
	})

	t.Run("missing context key never matches", func(t *testing.T) {
		decision := engine.Decide("inbox_triage", "quarantine", nil)
		assert.Equal(t, models.EffectAllow, decision.Effect)
	})

	t.Run("non-numeric context value never matches a threshold", func(t *testing.T) {
		decision := engine.Decide("inbox_triage", "quarantine", map[string]interface{}{"risk_score": "high"})
		assert.Equal(t, models.EffectAllow, decision.Effect)
	})
}

func TestEngine_NonNumericConditionIsEquality(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{
			ID:         "deny-auto",
			Agent:      "application",
			Action:     "apply",
			Conditions: map[string]interface{}{"auto_submit": true},
			Effect:     models.EffectDeny,
			Priority:   50,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.EffectDeny,
		engine.Decide("application", "apply", map[string]interface{}{"auto_submit": true}).Effect)
	assert.Equal(t, models.EffectAllow,
		engine.Decide("application", "apply", map[string]interface{}{"auto_submit": false}).Effect)
}

func TestEngine_MapValuedConditionComparesInsteadOfPanicking(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{
			ID:         "deny-targeted",
			Agent:      "application",
			Action:     "apply",
			Conditions: map[string]interface{}{"target": map[string]interface{}{"site": "x"}},
			Effect:     models.EffectDeny,
			Priority:   50,
		},
	})
	require.NoError(t, err)

	t.Run("deep-equal map matches", func(t *testing.T) {
		var decision models.PolicyDecision
		assert.NotPanics(t, func() {
			decision = engine.Decide("application", "apply",
				map[string]interface{}{"target": map[string]interface{}{"site": "x"}})
		})
		assert.Equal(t, models.EffectDeny, decision.Effect)
		assert.Equal(t, "deny-targeted", decision.RuleID)
	})

	t.Run("differing map falls through to default allow", func(t *testing.T) {
		decision := engine.Decide("application", "apply",
			map[string]interface{}{"target": map[string]interface{}{"site": "y"}})
		assert.Equal(t, models.EffectAllow, decision.Effect)
	})

	t.Run("slice-valued context against scalar condition never matches", func(t *testing.T) {
		assert.NotPanics(t, func() {
			decision := engine.Decide("application", "apply",
				map[string]interface{}{"target": []interface{}{"x"}})
			assert.Equal(t, models.EffectAllow, decision.Effect)
		})
	})
}

func TestEngine_ConditionsAreANDed(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{
			ID:     "deny-combined",
			Agent:  "*",
			Action: "quarantine",
			Conditions: map[string]interface{}{
				"risk_score": 70,
				"sender":     "unknown",
			},
			Effect:   models.EffectDeny,
			Priority: 50,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.EffectDeny, engine.Decide("a", "quarantine",
		map[string]interface{}{"risk_score": 80, "sender": "unknown"}).Effect)
	assert.Equal(t, models.EffectAllow, engine.Decide("a", "quarantine",
		map[string]interface{}{"risk_score": 80}).Effect)
	assert.Equal(t, models.EffectAllow, engine.Decide("a", "quarantine",
		map[string]interface{}{"risk_score": 80, "sender": "known"}).Effect)
}

func TestEngine_DenyApprovalEligibility(t *testing.T) {
	notEligible := false
	engine, err := NewEngine([]models.PolicyRule{
		{ID: "deny-default", Agent: "*", Action: "delete", Effect: models.EffectDeny, Priority: 10},
		{ID: "deny-absolute", Agent: "*", Action: "purge", Effect: models.EffectDeny, Priority: 10, ApprovalEligible: &notEligible},
		{ID: "allow", Agent: "*", Action: "label", Effect: models.EffectAllow, Priority: 10},
	})
	require.NoError(t, err)

	assert.True(t, engine.Decide("a", "delete", nil).RequiresApproval)
	assert.False(t, engine.Decide("a", "purge", nil).RequiresApproval)
	// allow never requires approval
	assert.False(t, engine.Decide("a", "label", nil).RequiresApproval)
}

func TestEngine_HighestPriorityAmongMatches(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{ID: "low", Agent: "*", Action: "*", Effect: models.EffectAllow, Priority: 1},
		{ID: "high", Agent: "*", Action: "archive", Effect: models.EffectDeny, Priority: 900},
		{ID: "mid", Agent: "inbox_triage", Action: "archive", Effect: models.EffectAllow, Priority: 500},
	})
	require.NoError(t, err)

	decision := engine.Decide("inbox_triage", "archive", nil)
	assert.Equal(t, "high", decision.RuleID)
}

func TestValidateRules(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		err := ValidateRules([]models.PolicyRule{
			{ID: "r1", Agent: "*", Action: "*", Effect: models.EffectAllow},
			{ID: "r1", Agent: "*", Action: "*", Effect: models.EffectDeny},
		})
		assert.ErrorIs(t, err, models.ErrInvalidRuleSet)
	})

	t.Run("invalid effect", func(t *testing.T) {
		err := ValidateRules([]models.PolicyRule{
			{ID: "r1", Agent: "*", Action: "*", Effect: "audit"},
		})
		assert.ErrorIs(t, err, models.ErrInvalidRuleSet)
	})

	t.Run("priority out of range", func(t *testing.T) {
		err := ValidateRules([]models.PolicyRule{
			{ID: "r1", Agent: "*", Action: "*", Effect: models.EffectAllow, Priority: 1001},
		})
		assert.ErrorIs(t, err, models.ErrInvalidRuleSet)
	})

	t.Run("empty id", func(t *testing.T) {
		err := ValidateRules([]models.PolicyRule{
			{Agent: "*", Action: "*", Effect: models.EffectAllow},
		})
		assert.ErrorIs(t, err, models.ErrInvalidRuleSet)
	})
}

func TestEngine_ReplaceIsAtomicUnderConcurrentReads(t *testing.T) {
	engine, err := NewEngine([]models.PolicyRule{
		{ID: "allow-all", Agent: "*", Action: "*", Effect: models.EffectAllow, Priority: 1},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				decision := engine.Decide("a", "b", nil)
				// Every read sees a complete set: either version of the
				// rule, never an empty or mixed state.
				assert.NotEmpty(t, decision.RuleID)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, engine.Replace([]models.PolicyRule{
			{ID: "deny-all", Agent: "*", Action: "*", Effect: models.EffectDeny, Priority: 1},
		}))
		require.NoError(t, engine.Replace([]models.PolicyRule{
			{ID: "allow-all", Agent: "*", Action: "*", Effect: models.EffectAllow, Priority: 1},
		}))
	}
	close(stop)
	wg.Wait()

	require.NoError(t, engine.Replace([]models.PolicyRule{}))
	assert.Empty(t, engine.Rules())
}

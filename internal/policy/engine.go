package policy

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// ruleSet is the immutable unit the engine evaluates against. Replace swaps
// the whole pointer, so concurrent Decide calls never observe a torn update.
type ruleSet struct {
	rules []models.PolicyRule
}

// Engine evaluates (agent, action, context) triples against the active rule
// set. It performs no I/O and is safe for concurrent use.
type Engine struct {
	current atomic.Pointer[ruleSet]
}

// NewEngine creates an engine with the given initial rule set.
func NewEngine(rules []models.PolicyRule) (*Engine, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	e := &Engine{}
	e.current.Store(&ruleSet{rules: cloneRules(rules)})
	return e, nil
}

// Replace atomically swaps the active rule set.
func (e *Engine) Replace(rules []models.PolicyRule) error {
	if err := ValidateRules(rules); err != nil {
		return err
	}
	e.current.Store(&ruleSet{rules: cloneRules(rules)})
	return nil
}

// Rules returns a copy of the active rule set.
func (e *Engine) Rules() []models.PolicyRule {
	return cloneRules(e.current.Load().rules)
}

// Decide evaluates one action request. Among matching rules the
// highest-priority one wins; equal priorities fall back to definition order
// (first match wins). No matching rule means the action is allowed.
func (e *Engine) Decide(agent, action string, context map[string]interface{}) models.PolicyDecision {
	rules := e.current.Load().rules
	var selected *models.PolicyRule
	for i := range rules {
		rule := &rules[i]
		if !patternMatches(rule.Agent, agent) || !patternMatches(rule.Action, action) {
			continue
		}
		if !conditionsMatch(rule.Conditions, context) {
			continue
		}
		if selected == nil || rule.Priority > selected.Priority {
			selected = rule
		}
	}

	if selected == nil {
		return models.PolicyDecision{
			Effect: models.EffectAllow,
			Reason: "no matching policy rule; default allow",
		}
	}

	decision := models.PolicyDecision{
		Effect: selected.Effect,
		RuleID: selected.ID,
		Reason: selected.Reason,
	}
	if decision.Reason == "" {
		decision.Reason = fmt.Sprintf("matched rule %s", selected.ID)
	}
	if selected.Effect == models.EffectDeny {
		decision.RequiresApproval = selected.ApprovalEligible == nil || *selected.ApprovalEligible
	}
	return decision
}

// ValidateRules checks a rule set for unique ids, valid effects and
// in-range priorities.
func ValidateRules(rules []models.PolicyRule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("%w: rule with empty id", models.ErrInvalidRuleSet)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("%w: duplicate rule id %q", models.ErrInvalidRuleSet, rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if rule.Effect != models.EffectAllow && rule.Effect != models.EffectDeny {
			return fmt.Errorf("%w: rule %q has invalid effect %q", models.ErrInvalidRuleSet, rule.ID, rule.Effect)
		}
		if rule.Priority < models.MinRulePriority || rule.Priority > models.MaxRulePriority {
			return fmt.Errorf("%w: rule %q priority %d out of range [%d, %d]",
				models.ErrInvalidRuleSet, rule.ID, rule.Priority, models.MinRulePriority, models.MaxRulePriority)
		}
	}
	return nil
}

func patternMatches(pattern, value string) bool {
	return pattern == "*" || pattern == value
}

// conditionsMatch reports whether every condition key matches the context.
// Numeric conditions are thresholds (context value >= condition); any other
// condition requires equality. A key missing from the context never matches.
// Equality uses reflect.DeepEqual so map- or slice-valued conditions from
// JSON rule sets compare instead of panicking.
func conditionsMatch(conditions, context map[string]interface{}) bool {
	for key, want := range conditions {
		got, ok := context[key]
		if !ok {
			return false
		}
		wantNum, wantIsNum := toFloat(want)
		if wantIsNum {
			gotNum, gotIsNum := toFloat(got)
			if !gotIsNum || gotNum < wantNum {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// toFloat normalizes the numeric types JSON decoding and Go literals
// produce so thresholds compare consistently.
func toFloat(v interface{}) (float64, bool) {
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

func cloneRules(rules []models.PolicyRule) []models.PolicyRule {
	out := make([]models.PolicyRule, len(rules))
	copy(out, rules)
	return out
}

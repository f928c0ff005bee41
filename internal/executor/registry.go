package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// HandlerFunc is the business logic behind one (agent, action) pair. The
// governance core never implements these; it only decides whether they may
// run. Handlers return a structured result map and own their own retries.
type HandlerFunc func(ctx context.Context, plan *models.ExecutionPlan) (map[string]interface{}, error)

// Registry maps (agent, action) pairs to handlers. Registration happens at
// wiring time; lookups happen per run.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]HandlerFunc)}
}

// Register binds a handler to an (agent, action) pair, replacing any
// previous binding.
func (r *Registry) Register(agent, action string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[agent] == nil {
		r.handlers[agent] = make(map[string]HandlerFunc)
	}
	r.handlers[agent][action] = fn
}

// Lookup returns the handler for an (agent, action) pair.
func (r *Registry) Lookup(agent, action string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[agent][action]
	return fn, ok
}

// Actions returns all registered action names, deduplicated and sorted.
// Used by the startup cross-check against the required-parameter table.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, actions := range r.handlers {
		for action := range actions {
			seen[action] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for action := range seen {
		names = append(names, action)
	}
	sort.Strings(names)
	return names
}

// HasAction reports whether any agent registered a handler for the action.
func (r *Registry) HasAction(action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, actions := range r.handlers {
		if _, ok := actions[action]; ok {
			return true
		}
	}
	return false
}

// ActionError wraps a failure raised by an action handler itself, as
// opposed to a guardrail violation raised before it ran.
type ActionError struct {
	Agent  string
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s.%s failed: %v", e.Agent, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

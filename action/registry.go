package action

import (
	"fmt"
	"strings"
	"sync"

	"github.com/agentpipe/agentpipe/core"
)

// Registry holds named actions. Resolution matches the action name or any of
// its similes, case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	byAlias map[string]core.Action
	ordered []core.Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{byAlias: make(map[string]core.Action)}
}

// Register adds an action under its name and all similes. A clash with an
// already-registered alias is rejected.
func (r *Registry) Register(a core.Action) error {
	if a == nil || a.Name() == "" {
		return fmt.Errorf("action name is required")
	}
	aliases := append([]string{a.Name()}, a.Similes()...)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alias := range aliases {
		key := strings.ToUpper(alias)
		if existing, ok := r.byAlias[key]; ok && existing.Name() != a.Name() {
			return fmt.Errorf("action alias %s already registered by %s", alias, existing.Name())
		}
	}
	for _, alias := range aliases {
		r.byAlias[strings.ToUpper(alias)] = a
	}
	r.ordered = append(r.ordered, a)
	return nil
}

// Resolve finds an action by name or simile, case-insensitively.
func (r *Registry) Resolve(name string) (core.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byAlias[strings.ToUpper(strings.TrimSpace(name))]
	return a, ok
}

// All returns actions in registration order.
func (r *Registry) All() []core.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Action, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Names returns the canonical action names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ordered))
	for i, a := range r.ordered {
		out[i] = a.Name()
	}
	return out
}

package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/agentpipe/agentpipe/core"
)

type registered struct {
	provider core.Provider
	index    int
}

// Registry holds named providers. Names are unique case-insensitively;
// registration order breaks merge-position ties during composition.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]registered
	ordered []registered
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]registered)}
}

// Register adds a provider, rejecting duplicate names.
func (r *Registry) Register(p core.Provider) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("provider name is required")
	}
	key := strings.ToUpper(p.Name())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("provider %s already registered", p.Name())
	}
	entry := registered{provider: p, index: len(r.ordered)}
	r.byName[key] = entry
	r.ordered = append(r.ordered, entry)
	return nil
}

// Get resolves a provider by name, case-insensitively.
func (r *Registry) Get(name string) (core.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byName[strings.ToUpper(name)]
	if !ok {
		return nil, false
	}
	return entry.provider, true
}

// All returns providers in registration order.
func (r *Registry) All() []core.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Provider, len(r.ordered))
	for i, e := range r.ordered {
		out[i] = e.provider
	}
	return out
}

func (r *Registry) snapshot() []registered {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]registered, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) lookup(name string) (registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byName[strings.ToUpper(name)]
	return entry, ok
}

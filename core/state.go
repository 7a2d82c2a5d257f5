package core

import (
	"context"
	"strings"
)

// ProviderResult is a single provider's contribution to a composed State.
// Any of the three facets may be empty.
type ProviderResult struct {
	Values map[string]string
	Data   map[string]any
	Text   string
}

// State is the ephemeral per-turn context assembled by the state composer.
// Values holds human-readable fragments for prompt interpolation, Data holds
// structured results for programmatic reuse, and Text is the fully assembled
// prompt-context string. A State is rebuilt every turn and never persisted.
type State struct {
	Values map[string]string
	Data   map[string]any
	Text   string
}

// NewState returns an empty State with allocated maps.
func NewState() *State {
	return &State{Values: map[string]string{}, Data: map[string]any{}}
}

// Merge folds a provider result into the state. Later calls overwrite
// same-key values; non-empty text fragments accumulate separated by a blank
// line, empty fragments are dropped entirely.
func (s *State) Merge(r *ProviderResult) {
	if r == nil {
		return
	}
	for k, v := range r.Values {
		s.Values[k] = v
	}
	for k, v := range r.Data {
		s.Data[k] = v
	}
	if t := strings.TrimSpace(r.Text); t != "" {
		if s.Text != "" {
			s.Text += "\n\n"
		}
		s.Text += t
	}
}

// Provider is a named unit of context production. Non-dynamic providers run
// on every composition; dynamic providers run only when explicitly requested
// (they typically cost an extra model call plus a similarity search).
type Provider interface {
	Name() string
	Description() string
	// Position orders merge precedence: lower positions merge first. The
	// conventional default is DefaultPosition.
	Position() int
	Dynamic() bool
	Get(ctx context.Context, actx *AgentContext, msg *Memory, st *State) (*ProviderResult, error)
}

// DefaultPosition is the merge position for providers with no ordering
// preference.
const DefaultPosition = 100

// Callback delivers a fragment of outbound content. An action may invoke its
// callback zero, one, or several times; each call is forwarded to the
// transport immediately, never aggregated.
type Callback func(ctx context.Context, content Content) error

// Action is a named unit of agent behavior selected per turn. Resolution
// from model output matches the name or any simile case-insensitively.
type Action interface {
	Name() string
	Similes() []string
	Description() string
	// Validate gates eligibility for the current message. A false return is
	// a silent skip, not an error.
	Validate(ctx context.Context, actx *AgentContext, msg *Memory) bool
	Handle(ctx context.Context, actx *AgentContext, msg *Memory, st *State, opts map[string]any, cb Callback) error
}

// Evaluator is a post-hoc assessment unit run after action dispatch. The
// pipeline only drives its lifecycle; evaluation logic is supplied by the
// embedder.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, actx *AgentContext, msg *Memory, st *State) error
}

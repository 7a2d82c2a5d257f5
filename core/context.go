package core

import (
	"context"

	"github.com/agentpipe/agentpipe/character"
	"github.com/agentpipe/agentpipe/logging"
)

// Rand is the randomness source injected into providers that sample
// character material. math/rand's *Rand satisfies it; tests supply a seeded
// or scripted implementation for reproducible composition.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// DefaultConversationLength caps how many recent room messages feed into a
// composed state when the embedder does not override it.
const DefaultConversationLength = 32

// AgentContext carries everything a provider or action needs for one agent
// instance: identity, character, the persistence and model facades, logging,
// randomness and the event emitter. It is constructed once per agent and
// passed by pointer into every call; it is never reconstructed mid-turn and
// holds no per-turn mutable state.
type AgentContext struct {
	AgentID   string
	Character *character.Character
	Store     Store
	Model     Invoker
	Logger    logging.Logger
	Rand      Rand

	// ConversationLength caps recent-message retrieval per turn.
	ConversationLength int

	// Emit publishes lifecycle events to the owning bus. Nil-safe via the
	// EmitEvent helper.
	Emit EmitFunc
}

// EmitEvent publishes an event when an emitter is wired, and is a no-op
// otherwise so facades can be exercised standalone in tests.
func (a *AgentContext) EmitEvent(ctx context.Context, et EventType, payload any) {
	if a.Emit != nil {
		a.Emit(ctx, et, payload)
	}
}

// Log returns the context logger, substituting a no-op logger when unset.
func (a *AgentContext) Log() logging.Logger {
	if a.Logger == nil {
		return logging.NoOpLogger{}
	}
	return a.Logger
}

// Conversation returns the effective recent-message cap.
func (a *AgentContext) Conversation() int {
	if a.ConversationLength > 0 {
		return a.ConversationLength
	}
	return DefaultConversationLength
}

// AgentName returns the character name, falling back to the agent id.
func (a *AgentContext) AgentName() string {
	if a.Character != nil && a.Character.Name != "" {
		return a.Character.Name
	}
	return a.AgentID
}

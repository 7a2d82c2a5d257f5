// Package agentpipe provides a high-level façade over the runtime pipeline
// (event bus, state composer, action dispatcher, persistence and model
// facades) enabling rapid construction of conversational agents. Most
// applications interact with this package by:
//  1. Creating an Agent via New() (optionally overriding the default
//     in-memory store, logger or model backend)
//  2. Registering extra providers, actions or evaluators
//  3. Feeding it messages via Respond() or by emitting events directly
//
// The façade delegates orchestration to runtime.Runtime while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a SQLite store and a
// structured logger.
package agentpipe

import (
	"context"

	"github.com/agentpipe/agentpipe/character"
	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/logging"
	"github.com/agentpipe/agentpipe/runtime"
)

// Options configures the Agent instance.
type Options struct {
	// AgentID identifies the agent; a fresh id is generated when empty.
	AgentID string

	// Character is the persona definition driving prompt composition.
	Character *character.Character

	// Store persists memories, entities and rooms (defaults to the
	// in-memory implementation if not provided).
	Store core.Store

	// Model is the model invocation backend. Required.
	Model core.Invoker

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger

	// ConversationLength caps recent-message retrieval per turn.
	ConversationLength int

	// NewsAPIKey enables the CURRENT_NEWS action when set.
	NewsAPIKey string

	// Providers, Actions and Evaluators extend the built-in set.
	Providers  []core.Provider
	Actions    []core.Action
	Evaluators []core.Evaluator
}

// Agent is the high-level façade aggregating the underlying runtime.
type Agent struct {
	runtime *runtime.Runtime
}

// New creates a new Agent with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	r, err := runtime.New(func(o *runtime.Options) {
		o.AgentID = opts.AgentID
		o.Character = opts.Character
		o.Store = opts.Store
		o.Model = opts.Model
		o.Logger = opts.Logger
		o.ConversationLength = opts.ConversationLength
		o.NewsAPIKey = opts.NewsAPIKey
		o.Providers = opts.Providers
		o.Actions = opts.Actions
		o.Evaluators = opts.Evaluators
	})
	if err != nil {
		return nil, err
	}
	return &Agent{runtime: r}, nil
}

// Runtime exposes the underlying pipeline for advanced wiring (extra bus
// subscribers, direct event emission).
func (a *Agent) Runtime() *runtime.Runtime { return a.runtime }

// Respond processes one inbound message synchronously, returning the
// outbound fragments produced during the turn.
func (a *Agent) Respond(ctx context.Context, msg *core.Memory) ([]core.Content, error) {
	var out []core.Content
	a.runtime.ProcessMessage(ctx, msg, func(ctx context.Context, c core.Content) error {
		out = append(out, c)
		return nil
	})
	return out, nil
}

// AddKnowledge embeds and stores a document for retrieval-augmented
// responses.
func (a *Agent) AddKnowledge(ctx context.Context, text string) error {
	return a.runtime.AddKnowledge(ctx, text)
}

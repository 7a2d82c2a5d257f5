// Package runtime assembles the pipeline: it wires the event bus, provider
// and action registries, state composer, dispatcher and store around one
// agent, registers the built-in providers, actions and event handlers, and
// drives a full response turn per inbound message.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/agentpipe/agentpipe/action"
	"github.com/agentpipe/agentpipe/bus"
	"github.com/agentpipe/agentpipe/character"
	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/logging"
	"github.com/agentpipe/agentpipe/memory"
	"github.com/agentpipe/agentpipe/provider"
)

// Options configures a Runtime. Zero values get sensible defaults: an
// in-memory store, a no-op logger and a fresh agent id.
type Options struct {
	AgentID            string
	Character          *character.Character
	Store              core.Store
	Model              core.Invoker
	Logger             logging.Logger
	Rand               core.Rand
	ConversationLength int

	// NewsAPIKey enables the CURRENT_NEWS action when set.
	NewsAPIKey string

	// Providers, Actions and Evaluators extend the built-in set.
	Providers  []core.Provider
	Actions    []core.Action
	Evaluators []core.Evaluator
}

// Runtime is one agent's assembled pipeline.
type Runtime struct {
	actx       *core.AgentContext
	bus        *bus.Bus
	providers  *provider.Registry
	actions    *action.Registry
	composer   *provider.Composer
	dispatcher *action.Dispatcher
	evaluators []core.Evaluator
	rooms      *core.RoomLocker
	logger     logging.Logger
}

// New assembles a runtime, registering the built-in providers, actions and
// event handlers.
func New(optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("a model invoker is required")
	}
	if opts.AgentID == "" {
		opts.AgentID = core.NewID()
	}
	if opts.Store == nil {
		opts.Store = memory.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if pl, ok := opts.Logger.(*logging.PipelineLogger); ok {
		opts.Model = &loggedInvoker{inner: opts.Model, logger: pl.WithComponent("model")}
	}

	r := &Runtime{
		bus:        bus.New(func(o *bus.Options) { o.Logger = opts.Logger }),
		providers:  provider.NewRegistry(),
		actions:    action.NewRegistry(),
		evaluators: opts.Evaluators,
		rooms:      core.NewRoomLocker(),
		logger:     opts.Logger,
	}
	r.composer = provider.NewComposer(r.providers, func(o *provider.ComposerOptions) { o.Logger = opts.Logger })
	r.dispatcher = action.NewDispatcher(r.actions, func(o *action.Options) { o.Logger = opts.Logger })

	r.actx = &core.AgentContext{
		AgentID:            opts.AgentID,
		Character:          opts.Character,
		Store:              opts.Store,
		Model:              opts.Model,
		Logger:             opts.Logger,
		Rand:               opts.Rand,
		ConversationLength: opts.ConversationLength,
		Emit:               r.bus.Emit,
	}

	builtinProviders := []core.Provider{
		provider.NewCharacterProvider(),
		provider.NewTimeProvider(),
		provider.NewRecentMessagesProvider(),
		provider.NewKnowledgeProvider(),
	}
	for _, p := range append(builtinProviders, opts.Providers...) {
		if err := r.providers.Register(p); err != nil {
			return nil, err
		}
	}

	builtinActions := []core.Action{
		action.NewReplyAction(r.composer),
		action.NewIgnoreAction(),
		action.NewKnowledgeAction(r.composer),
		action.NewNewsAction(func(o *action.NewsOptions) { o.APIKey = opts.NewsAPIKey }),
	}
	for _, a := range append(builtinActions, opts.Actions...) {
		if err := r.actions.Register(a); err != nil {
			return nil, err
		}
	}

	r.registerHandlers()
	return r, nil
}

// loggedInvoker instruments model calls with the pipeline logger's timing
// helper.
type loggedInvoker struct {
	inner  core.Invoker
	logger *logging.PipelineLogger
}

func (l *loggedInvoker) Invoke(ctx context.Context, kind core.ModelKind, p core.ModelParams) (core.ModelResult, error) {
	start := time.Now()
	res, err := l.inner.Invoke(ctx, kind, p)
	l.logger.LogModelCall(string(kind), time.Since(start), err)
	return res, err
}

// Context returns the agent context shared across the pipeline.
func (r *Runtime) Context() *core.AgentContext { return r.actx }

// Providers returns the provider registry.
func (r *Runtime) Providers() *provider.Registry { return r.providers }

// Actions returns the action registry.
func (r *Runtime) Actions() *action.Registry { return r.actions }

// Composer returns the state composer.
func (r *Runtime) Composer() *provider.Composer { return r.composer }

// Bus exposes the event bus for additional subscribers.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// Emit publishes an event through the runtime's bus.
func (r *Runtime) Emit(ctx context.Context, et core.EventType, payload any) {
	r.bus.Emit(ctx, et, payload)
}

// ProcessMessage runs one full response turn for an inbound message,
// delivering outbound fragments through cb. It is a synchronous convenience
// over emitting a message-received event.
func (r *Runtime) ProcessMessage(ctx context.Context, msg *core.Memory, cb core.Callback) {
	r.Emit(ctx, core.EventMessageReceived, core.MessagePayload{
		Agent:    r.actx,
		Message:  msg,
		Callback: cb,
		Source:   msg.Content.Source,
	})
}

// AddKnowledge embeds a document and stores it for retrieval by the
// knowledge provider.
func (r *Runtime) AddKnowledge(ctx context.Context, text string) error {
	res, err := r.actx.Model.Invoke(ctx, core.ModelEmbedding, core.ModelParams{Prompt: text})
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	doc := core.NewMemory("", r.actx.AgentID, r.actx.AgentID, core.Content{Text: text})
	doc.Embedding = res.Vector
	doc.Unique = true
	if err := r.actx.Store.CreateMemory(ctx, doc, "documents"); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

func (r *Runtime) registerHandlers() {
	r.bus.Register(core.EventMessageReceived, r.handleMessage)
	r.bus.Register(core.EventVoiceMessageReceived, r.handleMessage)
	r.bus.Register(core.EventReactionReceived, r.handleReaction)
	r.bus.Register(core.EventEntityJoined, r.handleEntityJoined)
	r.bus.Register(core.EventEntityLeft, r.handleEntityLeft)
	r.bus.Register(core.EventWorldJoined, r.handleWorldJoined)

	r.bus.Register(core.EventRunStarted, func(ctx context.Context, payload any) error {
		if p, ok := payload.(core.RunPayload); ok {
			r.logger.Debug("run started", "run_id", p.RunID, "room_id", p.RoomID)
		}
		return nil
	})
	r.bus.Register(core.EventRunEnded, func(ctx context.Context, payload any) error {
		if p, ok := payload.(core.RunPayload); ok {
			if p.Status == core.RunStatusError {
				r.logger.Error("run ended with error", "run_id", p.RunID, "error", p.Error)
			} else {
				r.logger.Debug("run ended", "run_id", p.RunID)
			}
		}
		return nil
	})
	r.bus.Register(core.EventActionCompleted, func(ctx context.Context, payload any) error {
		if p, ok := payload.(core.ActionEventPayload); ok && !p.Completed {
			r.logger.Warn("action did not complete", "action", p.ActionName, "error", p.Error)
		}
		return nil
	})
}

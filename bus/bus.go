// Package bus implements the in-process event bus that drives the pipeline.
// Handlers register per event type and run synchronously in registration
// order; a failing or panicking handler never prevents later handlers from
// running.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/logging"
)

// Handler processes one event payload. Returning an error marks the handler
// failed; it does not stop delivery to other handlers.
type Handler func(ctx context.Context, payload any) error

// Options configures a Bus.
type Options struct {
	Logger logging.Logger
}

// Bus is an ordered multi-subscriber event registry. Emit is safe for
// concurrent use; handlers for one Emit call run sequentially.
type Bus struct {
	mu       sync.RWMutex
	handlers map[core.EventType][]Handler
	logger   logging.Logger
}

// New creates an empty bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Bus{
		handlers: make(map[core.EventType][]Handler),
		logger:   opts.Logger,
	}
}

// Register appends a handler for an event type. Handlers run in the order
// they were registered.
func (b *Bus) Register(et core.EventType, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[et] = append(b.handlers[et], h)
	b.mu.Unlock()
}

// Emit delivers an event to every registered handler in order. Handler
// errors and panics are logged and isolated. When a message-path handler
// fails, the failure is surfaced as a RUN_ENDED event with error status so
// observers always see the turn terminate.
func (b *Bus) Emit(ctx context.Context, et core.EventType, payload any) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[et]))
	copy(hs, b.handlers[et])
	b.mu.RUnlock()

	for _, h := range hs {
		if err := b.invoke(ctx, h, payload); err != nil {
			b.logger.Error("event handler failed", "event", string(et), "error", err)
			b.reportRunFailure(ctx, et, payload, err)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}

// reportRunFailure converts an escaped message-handler error into a
// RUN_ENDED emission. RUN_ENDED itself is excluded so a faulty lifecycle
// observer cannot recurse.
func (b *Bus) reportRunFailure(ctx context.Context, et core.EventType, payload any, err error) {
	if et == core.EventRunEnded {
		return
	}
	mp, ok := payload.(core.MessagePayload)
	if !ok || mp.Message == nil {
		return
	}
	now := time.Now().UnixMilli()
	b.Emit(ctx, core.EventRunEnded, core.RunPayload{
		Agent:     mp.Agent,
		RunID:     core.NewID(),
		MessageID: mp.Message.ID,
		RoomID:    mp.Message.RoomID,
		EntityID:  mp.Message.EntityID,
		StartTime: now,
		EndTime:   now,
		Status:    core.RunStatusError,
		Error:     err.Error(),
		Source:    mp.Source,
	})
}

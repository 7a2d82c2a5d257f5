package provider

import (
	"context"
	"time"

	"github.com/agentpipe/agentpipe/core"
)

// TimeProvider contributes the current wall-clock time so the agent can
// answer time-sensitive questions. The clock is injectable for tests.
type TimeProvider struct {
	now func() time.Time
}

// TimeProviderOptions configures a TimeProvider.
type TimeProviderOptions struct {
	Now func() time.Time
}

// NewTimeProvider creates the time provider with a real clock by default.
func NewTimeProvider(optFns ...func(o *TimeProviderOptions)) *TimeProvider {
	opts := TimeProviderOptions{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &TimeProvider{now: opts.Now}
}

func (p *TimeProvider) Name() string { return "TIME" }

func (p *TimeProvider) Description() string { return "Current date and time" }

func (p *TimeProvider) Position() int { return core.DefaultPosition }

func (p *TimeProvider) Dynamic() bool { return false }

func (p *TimeProvider) Get(ctx context.Context, actx *core.AgentContext, msg *core.Memory, _ *core.State) (*core.ProviderResult, error) {
	human := p.now().UTC().Format("Monday, January 2, 2006 at 3:04:05 PM UTC")
	return &core.ProviderResult{
		Values: map[string]string{"time": human},
		Data:   map[string]any{"time": p.now().UTC()},
		Text:   "The current date and time is " + human + ". Please use this as your reference for any time-based operations or responses.",
	}, nil
}

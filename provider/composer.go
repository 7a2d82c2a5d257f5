package provider

import (
	"context"
	"sort"
	"time"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/logging"
)

// Composer assembles the per-turn State by fanning provider fetches out
// concurrently and merging results deterministically by ascending position,
// registration order breaking ties. Completion timing never influences merge
// order.
type Composer struct {
	registry *Registry
	logger   logging.Logger
}

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	Logger logging.Logger
}

// NewComposer creates a composer over a registry.
func NewComposer(registry *Registry, optFns ...func(o *ComposerOptions)) *Composer {
	opts := ComposerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Composer{registry: registry, logger: opts.Logger}
}

// observeFetch records one provider fetch. A pipeline logger gets the timing
// helper; a plain logger only hears about failures.
func (c *Composer) observeFetch(name string, dur time.Duration, err error) {
	if pl, ok := c.logger.(*logging.PipelineLogger); ok {
		pl.LogProviderFetch(name, dur, err)
		return
	}
	if err != nil {
		c.logger.Warn("provider fetch failed",
			"provider", name,
			"duration", dur.String(),
			"error", err)
	}
}

// Compose builds a State for one message. With no requested names every
// non-dynamic provider runs; an explicit list runs exactly the named
// providers, which is also the only way dynamic providers run. Unknown names
// are logged and skipped; a failing provider contributes nothing and never
// fails the composition.
func (c *Composer) Compose(ctx context.Context, actx *core.AgentContext, msg *core.Memory, requested []string) (*core.State, error) {
	var selected []registered
	if len(requested) > 0 {
		for _, name := range requested {
			entry, ok := c.registry.lookup(name)
			if !ok {
				c.logger.Warn("unknown provider requested", "provider", name)
				continue
			}
			selected = append(selected, entry)
		}
	} else {
		for _, entry := range c.registry.snapshot() {
			if !entry.provider.Dynamic() {
				selected = append(selected, entry)
			}
		}
	}

	results := make([]*core.ProviderResult, len(selected))
	done := make(chan int, len(selected))
	for i, entry := range selected {
		go func(i int, p core.Provider) {
			defer func() { done <- i }()
			start := time.Now()
			res, err := p.Get(ctx, actx, msg, core.NewState())
			c.observeFetch(p.Name(), time.Since(start), err)
			if err != nil {
				return
			}
			results[i] = res
		}(i, entry.provider)
	}
	for range selected {
		<-done
	}

	order := make([]int, len(selected))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := selected[order[a]], selected[order[b]]
		if pa.provider.Position() != pb.provider.Position() {
			return pa.provider.Position() < pb.provider.Position()
		}
		return pa.index < pb.index
	})

	st := core.NewState()
	providerData := make(map[string]*core.ProviderResult, len(selected))
	for _, i := range order {
		if results[i] == nil {
			continue
		}
		st.Merge(results[i])
		providerData[selected[i].provider.Name()] = results[i]
	}
	st.Data["providers"] = providerData
	return st, nil
}

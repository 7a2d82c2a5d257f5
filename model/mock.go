package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentpipe/agentpipe/core"
)

// Call records one invocation against a MockInvoker.
type Call struct {
	Kind   core.ModelKind
	Params core.ModelParams
}

// MockInvoker is a scriptable core.Invoker for tests. Responses queue per
// model kind; when a queue runs out its last response repeats. A Handler, if
// set, takes precedence over queued responses.
type MockInvoker struct {
	mu        sync.Mutex
	responses map[core.ModelKind][]core.ModelResult
	errs      map[core.ModelKind]error
	calls     []Call

	// Handler, when non-nil, fully scripts Invoke.
	Handler func(ctx context.Context, kind core.ModelKind, p core.ModelParams) (core.ModelResult, error)
}

// NewMockInvoker returns an empty mock with no scripted responses.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		responses: make(map[core.ModelKind][]core.ModelResult),
		errs:      make(map[core.ModelKind]error),
	}
}

// RespondText queues a text result for kind.
func (m *MockInvoker) RespondText(kind core.ModelKind, text string) *MockInvoker {
	return m.Respond(kind, core.ModelResult{Text: text})
}

// RespondVector queues an embedding result.
func (m *MockInvoker) RespondVector(vec []float32) *MockInvoker {
	return m.Respond(core.ModelEmbedding, core.ModelResult{Vector: vec})
}

// Respond queues an arbitrary result for kind.
func (m *MockInvoker) Respond(kind core.ModelKind, r core.ModelResult) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[kind] = append(m.responses[kind], r)
	return m
}

// FailWith makes every invocation of kind return err.
func (m *MockInvoker) FailWith(kind core.ModelKind, err error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind] = err
	return m
}

// Calls returns a copy of the recorded invocations.
func (m *MockInvoker) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns recorded invocations of one kind.
func (m *MockInvoker) CallsFor(kind core.ModelKind) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Invoke implements core.Invoker.
func (m *MockInvoker) Invoke(ctx context.Context, kind core.ModelKind, p core.ModelParams) (core.ModelResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Kind: kind, Params: p})
	handler := m.Handler
	if handler != nil {
		m.mu.Unlock()
		return handler(ctx, kind, p)
	}
	if err := m.errs[kind]; err != nil {
		m.mu.Unlock()
		return core.ModelResult{}, err
	}
	queue := m.responses[kind]
	if len(queue) == 0 {
		m.mu.Unlock()
		return core.ModelResult{}, fmt.Errorf("no scripted response for model kind %s", kind)
	}
	r := queue[0]
	if len(queue) > 1 {
		m.responses[kind] = queue[1:]
	}
	m.mu.Unlock()

	if kind.IsObject() && r.Object == nil && r.Text != "" {
		if obj, err := ParseJSONBlock(r.Text); err == nil {
			r.Object = obj
		}
	}
	return r, nil
}

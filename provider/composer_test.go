package provider

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/logging"
)

type fakeProvider struct {
	name     string
	position int
	dynamic  bool
	delay    time.Duration
	result   *core.ProviderResult
	err      error
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) Description() string { return f.name }
func (f *fakeProvider) Position() int       { return f.position }
func (f *fakeProvider) Dynamic() bool       { return f.dynamic }

func (f *fakeProvider) Get(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State) (*core.ProviderResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result, f.err
}

func composeWith(t *testing.T, providers []*fakeProvider, requested []string) *core.State {
	t.Helper()
	reg := NewRegistry()
	for _, p := range providers {
		require.NoError(t, reg.Register(p))
	}
	st, err := NewComposer(reg).Compose(context.Background(), &core.AgentContext{}, core.NewMemory("r", "e", "a", core.Content{}), requested)
	require.NoError(t, err)
	return st
}

func TestComposeMergesByPositionNotCompletionTime(t *testing.T) {
	// The low-position provider finishes last; its value must still be
	// overwritten by the higher-position one.
	st := composeWith(t, []*fakeProvider{
		{name: "SLOW_FIRST", position: 0, delay: 30 * time.Millisecond,
			result: &core.ProviderResult{Values: map[string]string{"k": "early"}, Text: "first"}},
		{name: "FAST_LAST", position: 200,
			result: &core.ProviderResult{Values: map[string]string{"k": "late"}, Text: "last"}},
	}, nil)

	assert.Equal(t, "late", st.Values["k"])
	assert.Equal(t, "first\n\nlast", st.Text)
}

func TestComposeTieBreaksByRegistrationOrder(t *testing.T) {
	st := composeWith(t, []*fakeProvider{
		{name: "A", position: 100, delay: 10 * time.Millisecond,
			result: &core.ProviderResult{Values: map[string]string{"k": "a"}}},
		{name: "B", position: 100,
			result: &core.ProviderResult{Values: map[string]string{"k": "b"}}},
	}, nil)

	assert.Equal(t, "b", st.Values["k"])
}

func TestComposeSkipsDynamicByDefault(t *testing.T) {
	st := composeWith(t, []*fakeProvider{
		{name: "STATIC", position: 0, result: &core.ProviderResult{Text: "static"}},
		{name: "COSTLY", position: 0, dynamic: true, result: &core.ProviderResult{Text: "costly"}},
	}, nil)

	assert.Equal(t, "static", st.Text)
}

func TestComposeExplicitListRunsExactlyThoseProviders(t *testing.T) {
	st := composeWith(t, []*fakeProvider{
		{name: "STATIC", position: 0, result: &core.ProviderResult{Text: "static"}},
		{name: "COSTLY", position: 10, dynamic: true, result: &core.ProviderResult{Text: "costly"}},
	}, []string{"costly"})

	assert.Equal(t, "costly", st.Text)
}

func TestComposeIgnoresUnknownRequestedProvider(t *testing.T) {
	st := composeWith(t, []*fakeProvider{
		{name: "STATIC", position: 0, result: &core.ProviderResult{Text: "static"}},
	}, []string{"STATIC", "NOPE"})

	assert.Equal(t, "static", st.Text)
}

func TestComposeIsolatesFailingProvider(t *testing.T) {
	st := composeWith(t, []*fakeProvider{
		{name: "BROKEN", position: 0, err: errors.New("backend down")},
		{name: "OK", position: 100, result: &core.ProviderResult{Text: "still here"}},
	}, nil)

	assert.Equal(t, "still here", st.Text)
}

func TestComposeRecordsFetchOutcomes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeProvider{name: "BROKEN", err: errors.New("backend down")}))
	require.NoError(t, reg.Register(&fakeProvider{name: "OK", position: 100, result: &core.ProviderResult{Text: "fine"}}))

	var buf bytes.Buffer
	lg := logging.NewLogger(&logging.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})
	c := NewComposer(reg, func(o *ComposerOptions) { o.Logger = lg })

	_, err := c.Compose(context.Background(), &core.AgentContext{}, core.NewMemory("r", "e", "a", core.Content{}), nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Provider fetch failed")
	assert.Contains(t, out, "backend down")
	assert.Contains(t, out, "Provider fetch completed")
}

func TestComposeDropsEmptyTextFragments(t *testing.T) {
	st := composeWith(t, []*fakeProvider{
		{name: "A", position: 0, result: &core.ProviderResult{Text: "alpha"}},
		{name: "B", position: 50, result: &core.ProviderResult{Text: "   "}},
		{name: "C", position: 100, result: &core.ProviderResult{Text: "gamma"}},
	}, nil)

	assert.Equal(t, "alpha\n\ngamma", st.Text)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeProvider{name: "TIME"}))
	err := reg.Register(&fakeProvider{name: "time"})
	assert.Error(t, err)
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeProvider{name: "RECENT_MESSAGES"}))
	_, ok := reg.Get("recent_messages")
	assert.True(t, ok)
}

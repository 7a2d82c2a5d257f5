package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpipe/agentpipe/character"
	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/memory"
	"github.com/agentpipe/agentpipe/model"
)

// fixedRand keeps slices in their given order and always picks index 0.
type fixedRand struct{}

func (fixedRand) Intn(n int) int { return 0 }

func (fixedRand) Shuffle(int, func(i, j int)) {}

func testAgent(store core.Store, invoker core.Invoker) *core.AgentContext {
	return &core.AgentContext{
		AgentID: "agent-1",
		Character: &character.Character{
			Name:       "Ada",
			System:     "Be helpful.",
			Bio:        []string{"Built the first compiler.", "Loves puzzles."},
			Topics:     []string{"compilers", "mathematics", "music"},
			Adjectives: []string{"curious"},
			Style: character.Style{
				All:  []string{"Be concise."},
				Chat: []string{"Use casual tone."},
				Post: []string{"Use hashtags."},
			},
			MessageExamples: [][]character.ExampleMessage{{
				{Name: "{{user}}", Text: "hello"},
				{Name: "{{agent}}", Text: "hi there", Actions: "REPLY"},
			}},
			PostExamples: []string{"Compilers are just very picky readers."},
		},
		Store: store,
		Model: invoker,
		Rand:  fixedRand{},
	}
}

func TestCharacterProviderConversational(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRoom(ctx, &core.Room{ID: "room-1", Type: core.ChannelGroup}))

	actx := testAgent(store, nil)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "hi"})

	res, err := NewCharacterProvider().Get(ctx, actx, msg, core.NewState())
	require.NoError(t, err)

	assert.Equal(t, "Ada", res.Values["agentName"])
	assert.Equal(t, "Be helpful.", res.Values["system"])
	assert.Equal(t, "curious", res.Values["adjective"])
	assert.Equal(t, "compilers", res.Values["topic"])
	assert.Equal(t, "Ada is interested in compilers, mathematics and music", res.Values["topics"])
	assert.Contains(t, res.Text, "# About Ada")
	assert.Contains(t, res.Text, "Built the first compiler. Loves puzzles.")
	assert.Contains(t, res.Values["directions"], "# Message Directions for Ada")
	assert.Contains(t, res.Values["directions"], "Use casual tone.")
	assert.NotContains(t, res.Values["directions"], "hashtags")
	assert.Contains(t, res.Values["examples"], "Alex: hello")
	assert.Contains(t, res.Values["examples"], "Ada: hi there (actions: REPLY)")
}

func TestCharacterProviderPostFormat(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRoom(ctx, &core.Room{ID: "feed-1", Type: core.ChannelFeed}))

	actx := testAgent(store, nil)
	msg := core.NewMemory("feed-1", "user-1", "agent-1", core.Content{Text: "hi"})

	res, err := NewCharacterProvider().Get(ctx, actx, msg, core.NewState())
	require.NoError(t, err)

	assert.Contains(t, res.Values["directions"], "# Post Directions for Ada")
	assert.Contains(t, res.Values["directions"], "Use hashtags.")
	assert.Contains(t, res.Values["examples"], "# Example Posts for Ada")
	assert.Contains(t, res.Values["examples"], "picky readers")
}

func TestTimeProviderUsesInjectedClock(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	p := NewTimeProvider(func(o *TimeProviderOptions) {
		o.Now = func() time.Time { return at }
	})

	res, err := p.Get(context.Background(), &core.AgentContext{}, nil, core.NewState())
	require.NoError(t, err)
	assert.Contains(t, res.Values["time"], "Saturday, March 14, 2026")
	assert.Contains(t, res.Text, "current date and time")
}

func TestRecentMessagesProvider(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRoom(ctx, &core.Room{ID: "room-1", Type: core.ChannelGroup}))
	require.NoError(t, store.CreateEntity(ctx, &core.Entity{ID: "user-1", Names: []string{"Pat"}}))

	actx := testAgent(store, nil)
	base := time.Now()
	for i, text := range []string{"first message", "second message"} {
		m := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: text})
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateMemory(ctx, m, "messages"))
	}

	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "and a question"})
	res, err := NewRecentMessagesProvider().Get(ctx, actx, msg, core.NewState())
	require.NoError(t, err)

	history := res.Values["recentMessages"]
	assert.True(t, strings.Index(history, "first message") < strings.Index(history, "second message"),
		"history should read oldest to newest")
	assert.Contains(t, history, "Pat: first message")
	assert.Contains(t, res.Text, "# Conversation Messages")
	assert.Contains(t, res.Text, "# Received Message:")
	assert.Contains(t, res.Text, "Pat: and a question")
}

func TestRecentMessagesCrossRoomInteractions(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"room-1", "room-2"} {
		require.NoError(t, store.CreateRoom(ctx, &core.Room{ID: id, Type: core.ChannelGroup}))
		require.NoError(t, store.AddParticipant(ctx, id, "user-1"))
		require.NoError(t, store.AddParticipant(ctx, id, "agent-1"))
	}
	require.NoError(t, store.CreateEntity(ctx, &core.Entity{ID: "user-1", Names: []string{"Pat"}}))

	earlier := core.NewMemory("room-2", "user-1", "agent-1", core.Content{Text: "we spoke before"})
	require.NoError(t, store.CreateMemory(ctx, earlier, "messages"))

	actx := testAgent(store, nil)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "hello again"})

	res, err := NewRecentMessagesProvider().Get(ctx, actx, msg, core.NewState())
	require.NoError(t, err)
	assert.Contains(t, res.Text, "# Previous Interactions with Pat")
	assert.Contains(t, res.Text, "we spoke before")
}

func TestKnowledgeProviderRetrievesDocuments(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()

	doc := core.NewMemory("", "", "agent-1", core.Content{Text: "Compilers translate source code."})
	doc.Embedding = []float32{1, 0, 0}
	require.NoError(t, store.CreateMemory(ctx, doc, "documents"))

	invoker := model.NewMockInvoker().
		RespondText(core.ModelObjectSmall, "```json\n{\"queryString\":\"compiler basics\"}\n```").
		RespondVector([]float32{1, 0, 0})

	actx := testAgent(store, invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "what is a compiler?"})

	res, err := NewKnowledgeProvider().Get(ctx, actx, msg, core.NewState())
	require.NoError(t, err)
	assert.Contains(t, res.Text, "# Knowledge")
	assert.Contains(t, res.Text, "- Compilers translate source code.")

	// The embedding call used the rewritten query.
	embCalls := invoker.CallsFor(core.ModelEmbedding)
	require.Len(t, embCalls, 1)
	assert.Equal(t, "compiler basics", embCalls[0].Params.Prompt)
}

func TestKnowledgeProviderFallsBackToRawText(t *testing.T) {
	store := memory.NewInMemoryStore()
	invoker := model.NewMockInvoker().
		FailWith(core.ModelObjectSmall, errors.New("small model down")).
		RespondVector([]float32{0, 1, 0})

	actx := testAgent(store, invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "plain question"})

	res, err := NewKnowledgeProvider().Get(context.Background(), actx, msg, core.NewState())
	require.NoError(t, err)
	assert.Empty(t, res.Text)

	embCalls := invoker.CallsFor(core.ModelEmbedding)
	require.Len(t, embCalls, 1)
	assert.Equal(t, "plain question", embCalls[0].Params.Prompt)
}

func TestKnowledgeProviderRewriteFallsBackOnUnparseableOutput(t *testing.T) {
	store := memory.NewInMemoryStore()
	invoker := model.NewMockInvoker().
		RespondText(core.ModelObjectSmall, "something about compilers, I suppose").
		RespondVector([]float32{0, 1, 0})

	actx := testAgent(store, invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "plain question"})

	_, err := NewKnowledgeProvider().Get(context.Background(), actx, msg, core.NewState())
	require.NoError(t, err)

	embCalls := invoker.CallsFor(core.ModelEmbedding)
	require.Len(t, embCalls, 1)
	assert.Equal(t, "plain question", embCalls[0].Params.Prompt)
}

func TestKnowledgeProviderEmptyOnNoMatches(t *testing.T) {
	store := memory.NewInMemoryStore()
	invoker := model.NewMockInvoker().
		RespondText(core.ModelObjectSmall, "```json\n{\"queryString\":\"query\"}\n```").
		RespondVector([]float32{1, 0, 0})

	actx := testAgent(store, invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "anything"})

	res, err := NewKnowledgeProvider().Get(context.Background(), actx, msg, core.NewState())
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Empty(t, res.Values)
}

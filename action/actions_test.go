package action

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpipe/agentpipe/character"
	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/memory"
	"github.com/agentpipe/agentpipe/model"
)

func collectCallback(out *[]core.Content) core.Callback {
	return func(ctx context.Context, content core.Content) error {
		*out = append(*out, content)
		return nil
	}
}

func TestReplyDeliversDecisionText(t *testing.T) {
	invoker := model.NewMockInvoker()
	actx := decisionAgent(invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "hi"})

	var sent []core.Content
	a := NewReplyAction(nil)
	err := a.Handle(context.Background(), actx, msg, core.NewState(),
		map[string]any{"text": "hello back", "thought": "be friendly"}, collectCallback(&sent))
	require.NoError(t, err)

	require.Len(t, sent, 1)
	assert.Equal(t, "hello back", sent[0].Text)
	assert.Equal(t, "be friendly", sent[0].Thought)
	assert.Equal(t, []string{"REPLY"}, sent[0].Actions)
	assert.Equal(t, msg.ID, sent[0].InReplyTo)
	// No model call needed when the decision already carries text.
	assert.Empty(t, invoker.Calls())
}

func TestReplyGeneratesWhenDecisionHasNoText(t *testing.T) {
	invoker := model.NewMockInvoker().RespondText(core.ModelObjectLarge,
		"```json\n{\"thought\":\"greeting\",\"text\":\"hello from Ada\"}\n```")
	actx := decisionAgent(invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "hi"})

	var sent []core.Content
	a := NewReplyAction(nil)
	err := a.Handle(context.Background(), actx, msg, core.NewState(), map[string]any{}, collectCallback(&sent))
	require.NoError(t, err)

	require.Len(t, sent, 1)
	assert.Equal(t, "hello from Ada", sent[0].Text)
	assert.Equal(t, "greeting", sent[0].Thought)
}

func TestReplyToleratesUnstructuredModelOutput(t *testing.T) {
	invoker := model.NewMockInvoker().RespondText(core.ModelObjectLarge, "Just plain prose, no JSON.")
	actx := decisionAgent(invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "hi"})

	var sent []core.Content
	a := NewReplyAction(nil)
	err := a.Handle(context.Background(), actx, msg, core.NewState(), map[string]any{}, collectCallback(&sent))
	require.NoError(t, err)

	require.Len(t, sent, 1)
	assert.Equal(t, "Just plain prose, no JSON.", sent[0].Text)
}

func TestIgnoreNeverInvokesCallback(t *testing.T) {
	var sent []core.Content
	a := NewIgnoreAction()
	err := a.Handle(context.Background(), decisionAgent(nil),
		core.NewMemory("r", "e", "a", core.Content{Text: "bye"}), core.NewState(),
		map[string]any{"text": "should not be sent"}, collectCallback(&sent))
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestNewsActionFetchesAndStoresDigest(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"articles":[
			{"title":"Go 1.26 released","description":"New toolchain","url":"https://example.com/go","content":"Details about the release."},
			{"title":"Second story","description":"More news","url":"https://example.com/2","content":"Body"}
		]}`))
	}))
	defer server.Close()

	store := memory.NewInMemoryStore()
	require.NoError(t, store.CreateRoom(context.Background(), &core.Room{ID: "room-1", Type: core.ChannelGroup}))

	invoker := model.NewMockInvoker().RespondText(core.ModelTextSmall, "golang")
	actx := &core.AgentContext{
		AgentID:   "agent-1",
		Character: &character.Character{Name: "Ada"},
		Store:     store,
		Model:     invoker,
	}
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "any golang news?"})

	a := NewNewsAction(func(o *NewsOptions) {
		o.APIKey = "test-key"
		o.BaseURL = server.URL
	})
	require.True(t, a.Validate(context.Background(), actx, msg))

	var sent []core.Content
	err := a.Handle(context.Background(), actx, msg, core.NewState(), map[string]any{}, collectCallback(&sent))
	require.NoError(t, err)

	assert.Equal(t, "golang", gotQuery)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "The current news for golang:")
	assert.Contains(t, sent[0].Text, "Go 1.26 released")
	assert.Equal(t, []string{"CURRENT_NEWS_RESPONSE"}, sent[0].Actions)

	stored, err := store.GetMemories(context.Background(), core.MemoryFilter{Table: "messages", RoomID: "room-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Contains(t, stored[0].Content.Text, "Go 1.26 released")
}

func TestNewsActionRequiresAPIKey(t *testing.T) {
	a := NewNewsAction()
	assert.False(t, a.Validate(context.Background(), decisionAgent(nil), core.NewMemory("r", "e", "a", core.Content{})))
}

func TestNewsActionSurfacesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	invoker := model.NewMockInvoker().RespondText(core.ModelTextSmall, "golang")
	actx := decisionAgent(invoker)
	msg := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: "news"})

	a := NewNewsAction(func(o *NewsOptions) {
		o.APIKey = "test-key"
		o.BaseURL = server.URL
	})
	err := a.Handle(context.Background(), actx, msg, core.NewState(), map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

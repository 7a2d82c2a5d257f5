package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpipe/agentpipe/core"
)

func newMessage(roomID, entityID, text string, at time.Time) *core.Memory {
	m := core.NewMemory(roomID, entityID, "agent-1", core.Content{Text: text})
	m.CreatedAt = at
	return m
}

func TestCreateMemoryDuplicate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	m := newMessage("room-1", "user-1", "hello", time.Now())
	require.NoError(t, s.CreateMemory(ctx, m, "messages"))

	err := s.CreateMemory(ctx, m, "messages")
	require.Error(t, err)
	assert.True(t, core.IsDuplicate(err))

	// Same id in a different table is a distinct record.
	assert.NoError(t, s.CreateMemory(ctx, m, "documents"))
}

func TestGetMemoriesNewestFirstWithCount(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		m := newMessage("room-1", "user-1", string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.CreateMemory(ctx, m, "messages"))
	}
	require.NoError(t, s.CreateMemory(ctx, newMessage("room-2", "user-1", "other", base), "messages"))

	got, err := s.GetMemories(ctx, core.MemoryFilter{Table: "messages", RoomID: "room-1", Count: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].Content.Text)
	assert.Equal(t, "d", got[1].Content.Text)
	assert.Equal(t, "c", got[2].Content.Text)
}

func TestGetMemoriesByRoomIDs(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.CreateMemory(ctx, newMessage("room-1", "u", "one", base), "messages"))
	require.NoError(t, s.CreateMemory(ctx, newMessage("room-2", "u", "two", base.Add(time.Second)), "messages"))
	require.NoError(t, s.CreateMemory(ctx, newMessage("room-3", "u", "three", base.Add(2*time.Second)), "messages"))

	got, err := s.GetMemoriesByRoomIDs(ctx, "messages", []string{"room-1", "room-3"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Content.Text)
	assert.Equal(t, "one", got[1].Content.Text)
}

func TestSearchMemoriesByEmbedding(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	add := func(text string, vec []float32) {
		m := core.NewMemory("room-1", "user-1", "agent-1", core.Content{Text: text})
		m.Embedding = vec
		require.NoError(t, s.CreateMemory(ctx, m, "documents"))
	}
	add("close", []float32{1, 0, 0})
	add("near", []float32{0.9, 0.1, 0})
	add("far", []float32{0, 1, 0})
	add("unembedded", nil)

	got, err := s.SearchMemoriesByEmbedding(ctx, []float32{1, 0, 0}, core.SearchFilter{
		Table:     "documents",
		Threshold: 0.5,
		Count:     10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "close", got[0].Content.Text)
	assert.Equal(t, "near", got[1].Content.Text)
}

func TestEntityLifecycle(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, err := s.GetEntityByID(ctx, "missing")
	assert.True(t, core.IsNotFound(err))

	e := &core.Entity{ID: "user-1", Names: []string{"Pat"}}
	require.NoError(t, s.CreateEntity(ctx, e))
	// Re-creating is a no-op, not an error.
	require.NoError(t, s.CreateEntity(ctx, &core.Entity{ID: "user-1", Names: []string{"Other"}}))

	got, err := s.GetEntityByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pat"}, got.Names)

	got.SetStatus(core.StatusMuted)
	require.NoError(t, s.UpdateEntity(ctx, got))

	again, err := s.GetEntityByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusMuted, again.Status())

	err = s.UpdateEntity(ctx, &core.Entity{ID: "ghost"})
	assert.True(t, core.IsNotFound(err))
}

func TestParticipantsAndRooms(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	err := s.AddParticipant(ctx, "no-room", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConstraint)

	require.NoError(t, s.CreateRoom(ctx, &core.Room{ID: "room-1", Type: core.ChannelGroup}))
	require.NoError(t, s.CreateRoom(ctx, &core.Room{ID: "room-2", Type: core.ChannelDirect}))
	require.NoError(t, s.AddParticipant(ctx, "room-1", "user-1"))
	require.NoError(t, s.AddParticipant(ctx, "room-1", "user-1")) // idempotent
	require.NoError(t, s.AddParticipant(ctx, "room-2", "user-2"))

	rooms, err := s.GetRoomsForParticipants(ctx, []string{"user-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"room-1"}, rooms)

	rooms, err = s.GetRoomsForParticipants(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"room-1", "room-2"}, rooms)
}

func TestStoredMemoryIsIsolatedFromCaller(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	m := newMessage("room-1", "user-1", "original", time.Now())
	m.Content.Actions = []string{"REPLY"}
	require.NoError(t, s.CreateMemory(ctx, m, "messages"))

	m.Content.Text = "mutated"
	m.Content.Actions[0] = "IGNORE"

	got, err := s.GetMemories(ctx, core.MemoryFilter{Table: "messages", RoomID: "room-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "original", got[0].Content.Text)
	assert.Equal(t, []string{"REPLY"}, got[0].Content.Actions)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

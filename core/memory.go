package core

import (
	"context"
	"time"
)

// ChannelType categorizes a room and selects formatting rules. Feed and
// thread rooms use "post" formatting; direct and group rooms use
// conversational message formatting.
type ChannelType string

const (
	// ChannelDirect is a one-on-one conversation.
	ChannelDirect ChannelType = "direct"
	// ChannelGroup is a multi-participant conversation.
	ChannelGroup ChannelType = "group"
	// ChannelFeed is a public timeline of posts.
	ChannelFeed ChannelType = "feed"
	// ChannelThread is a reply chain hanging off a post.
	ChannelThread ChannelType = "thread"
)

// IsPostFormat reports whether rooms of this type render as posts rather
// than conversational messages.
func (c ChannelType) IsPostFormat() bool { return c == ChannelFeed || c == ChannelThread }

// Content is the payload of a Memory: the message text plus optional
// structured action tags, provider requests, and reaction linkage.
type Content struct {
	Text      string   `json:"text"`
	Thought   string   `json:"thought,omitempty"`
	Actions   []string `json:"actions,omitempty"`
	Providers []string `json:"providers,omitempty"`
	Reaction  bool     `json:"reaction,omitempty"`
	InReplyTo string   `json:"in_reply_to,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// Memory is a persisted conversational record: a message, a reaction, or a
// knowledge document. Records are immutable after creation; corrections are
// expressed as new superseding records, never in-place edits or deletes.
type Memory struct {
	ID        string         `json:"id"`
	RoomID    string         `json:"room_id"`
	EntityID  string         `json:"entity_id"`
	AgentID   string         `json:"agent_id"`
	Content   Content        `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Unique    bool           `json:"unique,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMemory constructs a message record with a fresh identifier and UTC
// creation timestamp.
func NewMemory(roomID, entityID, agentID string, content Content) *Memory {
	return &Memory{
		ID:        NewID(),
		RoomID:    roomID,
		EntityID:  entityID,
		AgentID:   agentID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// ParticipantStatus is the gating state of an entity. Transitions are
// idempotent upserts; re-applying the current status is a no-op.
type ParticipantStatus string

const (
	// StatusActive entities take part in conversations normally.
	StatusActive ParticipantStatus = "ACTIVE"
	// StatusMuted entities still have their messages stored, but the agent
	// never attempts a response for them.
	StatusMuted ParticipantStatus = "MUTED"
	// StatusInactive entities have left; no dispatch occurs until rejoin.
	StatusInactive ParticipantStatus = "INACTIVE"
)

// Metadata keys used for participant gating.
const (
	MetadataStatus = "status"
	MetadataLeftAt = "leftAt"
)

// Entity is a participant (human or agent) known to the system. Entities are
// created on first contact and updated in place; they are never hard-deleted.
type Entity struct {
	ID       string         `json:"id"`
	Names    []string       `json:"names"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Status returns the participant status recorded in metadata, defaulting to
// ACTIVE for entities that predate gating.
func (e *Entity) Status() ParticipantStatus {
	if e.Metadata != nil {
		if s, ok := e.Metadata[MetadataStatus].(string); ok && s != "" {
			return ParticipantStatus(s)
		}
	}
	return StatusActive
}

// SetStatus records a participant status in metadata. Transitioning to
// INACTIVE stamps leftAt with the current unix-millisecond time; returning
// to ACTIVE clears it.
func (e *Entity) SetStatus(s ParticipantStatus) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Metadata[MetadataStatus] = string(s)
	switch s {
	case StatusInactive:
		e.Metadata[MetadataLeftAt] = time.Now().UnixMilli()
	case StatusActive:
		delete(e.Metadata, MetadataLeftAt)
	}
}

// DisplayName returns the first recorded name, falling back to the id.
func (e *Entity) DisplayName() string {
	if len(e.Names) > 0 && e.Names[0] != "" {
		return e.Names[0]
	}
	return e.ID
}

// Room is a conversation channel grouping entities and messages.
type Room struct {
	ID      string      `json:"id"`
	WorldID string      `json:"world_id,omitempty"`
	Name    string      `json:"name,omitempty"`
	Type    ChannelType `json:"type"`
	Source  string      `json:"source,omitempty"`
}

// World is the outer container a room belongs to (a server, workspace or
// similar platform grouping).
type World struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
}

// MemoryFilter narrows a GetMemories call. Table is required; remaining
// fields are optional. Count caps the result set, newest records first.
type MemoryFilter struct {
	Table    string
	RoomID   string
	EntityID string
	AgentID  string
	Count    int
	Unique   bool
}

// SearchFilter narrows an embedding similarity search. Results below
// Threshold (cosine similarity) are dropped; Count caps the result set.
type SearchFilter struct {
	Table     string
	RoomID    string
	AgentID   string
	Threshold float64
	Count     int
}

// Store is the persistence facade consumed by the pipeline. Implementations
// must treat all mutations as idempotent upserts: re-creating an existing
// entity or participant link is not an error, and duplicate memory inserts
// surface ErrDuplicate so callers can classify them.
type Store interface {
	CreateMemory(ctx context.Context, m *Memory, table string) error
	GetMemories(ctx context.Context, f MemoryFilter) ([]*Memory, error)
	GetMemoriesByRoomIDs(ctx context.Context, table string, roomIDs []string, limit int) ([]*Memory, error)
	SearchMemoriesByEmbedding(ctx context.Context, embedding []float32, f SearchFilter) ([]*Memory, error)

	GetEntityByID(ctx context.Context, id string) (*Entity, error)
	CreateEntity(ctx context.Context, e *Entity) error
	UpdateEntity(ctx context.Context, e *Entity) error

	GetRoom(ctx context.Context, id string) (*Room, error)
	CreateRoom(ctx context.Context, r *Room) error
	GetRoomsForParticipants(ctx context.Context, entityIDs []string) ([]string, error)
	AddParticipant(ctx context.Context, roomID, entityID string) error

	EnsureWorld(ctx context.Context, w *World) error
}

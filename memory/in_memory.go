package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentpipe/agentpipe/core"
)

type storedMemory struct {
	mem *core.Memory
	seq int64
}

// InMemoryStore is a thread-safe core.Store backed by maps. It is the
// default store for tests and short-lived agents; nothing survives process
// restart.
type InMemoryStore struct {
	mu           sync.RWMutex
	seq          int64
	tables       map[string][]storedMemory // table name -> insertion order
	memoryIDs    map[string]map[string]bool
	entities     map[string]*core.Entity
	rooms        map[string]*core.Room
	participants map[string]map[string]bool // roomID -> entityID set
	worlds       map[string]*core.World
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tables:       make(map[string][]storedMemory),
		memoryIDs:    make(map[string]map[string]bool),
		entities:     make(map[string]*core.Entity),
		rooms:        make(map[string]*core.Room),
		participants: make(map[string]map[string]bool),
		worlds:       make(map[string]*core.World),
	}
}

// CreateMemory stores a record in the named table. Re-inserting an existing
// id surfaces core.ErrDuplicate.
func (s *InMemoryStore) CreateMemory(ctx context.Context, m *core.Memory, table string) error {
	if m == nil {
		return fmt.Errorf("memory is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = core.NewID()
	}
	ids := s.memoryIDs[table]
	if ids == nil {
		ids = make(map[string]bool)
		s.memoryIDs[table] = ids
	}
	if ids[m.ID] {
		return fmt.Errorf("memory %s in table %s: %w", m.ID, table, core.ErrDuplicate)
	}
	ids[m.ID] = true
	s.seq++
	s.tables[table] = append(s.tables[table], storedMemory{mem: cloneMemory(m), seq: s.seq})
	return nil
}

// GetMemories returns records matching the filter, newest first.
func (s *InMemoryStore) GetMemories(ctx context.Context, f core.MemoryFilter) ([]*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storedMemory
	for _, sm := range s.tables[f.Table] {
		m := sm.mem
		if f.RoomID != "" && m.RoomID != f.RoomID {
			continue
		}
		if f.EntityID != "" && m.EntityID != f.EntityID {
			continue
		}
		if f.AgentID != "" && m.AgentID != f.AgentID {
			continue
		}
		if f.Unique && !m.Unique {
			continue
		}
		matched = append(matched, sm)
	}
	sortNewestFirst(matched)
	if f.Count > 0 && len(matched) > f.Count {
		matched = matched[:f.Count]
	}
	return collect(matched), nil
}

// GetMemoriesByRoomIDs returns records from any of the given rooms, newest
// first, capped at limit.
func (s *InMemoryStore) GetMemoriesByRoomIDs(ctx context.Context, table string, roomIDs []string, limit int) ([]*core.Memory, error) {
	wanted := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storedMemory
	for _, sm := range s.tables[table] {
		if wanted[sm.mem.RoomID] {
			matched = append(matched, sm)
		}
	}
	sortNewestFirst(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return collect(matched), nil
}

// SearchMemoriesByEmbedding returns records whose embedding cosine
// similarity to the query meets the threshold, most similar first.
func (s *InMemoryStore) SearchMemoriesByEmbedding(ctx context.Context, embedding []float32, f core.SearchFilter) ([]*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		mem   *core.Memory
		score float64
	}
	var matched []scored
	for _, sm := range s.tables[f.Table] {
		m := sm.mem
		if f.RoomID != "" && m.RoomID != f.RoomID {
			continue
		}
		if f.AgentID != "" && m.AgentID != f.AgentID {
			continue
		}
		if len(m.Embedding) == 0 {
			continue
		}
		score := CosineSimilarity(embedding, m.Embedding)
		if score < f.Threshold {
			continue
		}
		matched = append(matched, scored{mem: m, score: score})
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if f.Count > 0 && len(matched) > f.Count {
		matched = matched[:f.Count]
	}
	out := make([]*core.Memory, len(matched))
	for i, sc := range matched {
		out[i] = cloneMemory(sc.mem)
	}
	return out, nil
}

// GetEntityByID returns the entity or core.ErrNotFound.
func (s *InMemoryStore) GetEntityByID(ctx context.Context, id string) (*core.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, core.ErrNotFound)
	}
	return cloneEntity(e), nil
}

// CreateEntity stores a new entity. Creating an entity that already exists
// is a no-op.
func (s *InMemoryStore) CreateEntity(ctx context.Context, e *core.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; ok {
		return nil
	}
	s.entities[e.ID] = cloneEntity(e)
	return nil
}

// UpdateEntity replaces a stored entity, returning core.ErrNotFound when it
// was never created.
func (s *InMemoryStore) UpdateEntity(ctx context.Context, e *core.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; !ok {
		return fmt.Errorf("entity %s: %w", e.ID, core.ErrNotFound)
	}
	s.entities[e.ID] = cloneEntity(e)
	return nil
}

// GetRoom returns the room or core.ErrNotFound.
func (s *InMemoryStore) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, core.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// CreateRoom stores a new room. Creating a room that already exists is a
// no-op.
func (s *InMemoryStore) CreateRoom(ctx context.Context, r *core.Room) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("room id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return nil
	}
	cp := *r
	s.rooms[r.ID] = &cp
	return nil
}

// GetRoomsForParticipants returns ids of rooms where any of the given
// entities participate.
func (s *InMemoryStore) GetRoomsForParticipants(ctx context.Context, entityIDs []string) ([]string, error) {
	wanted := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for roomID, members := range s.participants {
		for entityID := range members {
			if wanted[entityID] && !seen[roomID] {
				seen[roomID] = true
				out = append(out, roomID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// AddParticipant links an entity to a room. Re-linking is a no-op; linking
// to an unknown room surfaces core.ErrConstraint.
func (s *InMemoryStore) AddParticipant(ctx context.Context, roomID, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("participant room %s: %w", roomID, core.ErrConstraint)
	}
	members := s.participants[roomID]
	if members == nil {
		members = make(map[string]bool)
		s.participants[roomID] = members
	}
	members[entityID] = true
	return nil
}

// EnsureWorld upserts a world record.
func (s *InMemoryStore) EnsureWorld(ctx context.Context, w *core.World) error {
	if w == nil || w.ID == "" {
		return fmt.Errorf("world id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.worlds[w.ID] = &cp
	return nil
}

func sortNewestFirst(sms []storedMemory) {
	sort.SliceStable(sms, func(i, j int) bool {
		ti, tj := sms[i].mem.CreatedAt, sms[j].mem.CreatedAt
		if ti.Equal(tj) {
			return sms[i].seq > sms[j].seq
		}
		return ti.After(tj)
	})
}

func collect(sms []storedMemory) []*core.Memory {
	out := make([]*core.Memory, len(sms))
	for i, sm := range sms {
		out[i] = cloneMemory(sm.mem)
	}
	return out
}

func cloneMemory(m *core.Memory) *core.Memory {
	cp := *m
	if m.Embedding != nil {
		cp.Embedding = make([]float32, len(m.Embedding))
		copy(cp.Embedding, m.Embedding)
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	if m.Content.Actions != nil {
		cp.Content.Actions = append([]string(nil), m.Content.Actions...)
	}
	if m.Content.Providers != nil {
		cp.Content.Providers = append([]string(nil), m.Content.Providers...)
	}
	return &cp
}

func cloneEntity(e *core.Entity) *core.Entity {
	cp := *e
	if e.Names != nil {
		cp.Names = append([]string(nil), e.Names...)
	}
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

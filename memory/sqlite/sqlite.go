// Package sqlite implements core.Store on an embedded SQLite database. It
// needs no external server or cgo; similarity search decodes stored
// embeddings and ranks by cosine similarity in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/memory"
)

// Store implements core.Store using SQLite.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
}

const (
	maxInitAttempts = 5
	initRetryDelay  = 100 * time.Millisecond
)

// New opens or creates a SQLite database at the given path and applies the
// schema. Initialization errors are retried up to maxInitAttempts; after the
// last attempt a usable connection is kept even when migration failed, so an
// already-provisioned database behind a flaky disk still comes up.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxInitAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(initRetryDelay)
		}

		db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
		if err != nil {
			lastErr = fmt.Errorf("open db: %w", err)
			continue
		}

		s := &Store{
			db:      db,
			entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		}
		if err := s.migrate(); err != nil {
			lastErr = fmt.Errorf("migrate: %w", err)
			if attempt == maxInitAttempts && db.Ping() == nil {
				return s, nil
			}
			db.Close()
			continue
		}
		return s, nil
	}
	return nil, lastErr
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT NOT NULL,
		tbl        TEXT NOT NULL,
		room_id    TEXT NOT NULL,
		entity_id  TEXT NOT NULL,
		agent_id   TEXT NOT NULL,
		content    TEXT NOT NULL,
		embedding  BLOB,
		metadata   TEXT,
		is_unique  INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (id, tbl)
	);
	CREATE INDEX IF NOT EXISTS idx_memories_tbl_room ON memories(tbl, room_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_tbl_agent ON memories(tbl, agent_id);

	CREATE TABLE IF NOT EXISTS entities (
		id       TEXT PRIMARY KEY,
		names    TEXT NOT NULL,
		metadata TEXT
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id       TEXT PRIMARY KEY,
		world_id TEXT,
		name     TEXT,
		type     TEXT NOT NULL,
		source   TEXT
	);

	CREATE TABLE IF NOT EXISTS participants (
		room_id   TEXT NOT NULL REFERENCES rooms(id),
		entity_id TEXT NOT NULL,
		PRIMARY KEY (room_id, entity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_participants_entity ON participants(entity_id);

	CREATE TABLE IF NOT EXISTS worlds (
		id     TEXT PRIMARY KEY,
		name   TEXT,
		source TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// classify maps driver errors to the core sentinel taxonomy so callers can
// branch with errors.Is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return core.ErrDuplicate
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return core.ErrConstraint
		}
	}
	return err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, classify(err))
}

// CreateMemory inserts a record, surfacing core.ErrDuplicate when the id
// already exists in the table.
func (s *Store) CreateMemory(ctx context.Context, m *core.Memory, table string) error {
	if m == nil {
		return fmt.Errorf("memory is nil")
	}
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	content, err := json.Marshal(m.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	var metadata []byte
	if m.Metadata != nil {
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, tbl, room_id, entity_id, agent_id, content, embedding, metadata, is_unique, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, table, m.RoomID, m.EntityID, m.AgentID, string(content),
		encodeEmbedding(m.Embedding), nullableText(metadata), boolToInt(m.Unique), m.CreatedAt.UnixMilli(),
	)
	return wrap("create memory", err)
}

// GetMemories returns records matching the filter, newest first.
func (s *Store) GetMemories(ctx context.Context, f core.MemoryFilter) ([]*core.Memory, error) {
	query := `SELECT id, room_id, entity_id, agent_id, content, embedding, metadata, is_unique, created_at
		FROM memories WHERE tbl = ?`
	args := []any{f.Table}
	if f.RoomID != "" {
		query += ` AND room_id = ?`
		args = append(args, f.RoomID)
	}
	if f.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	if f.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, f.AgentID)
	}
	if f.Unique {
		query += ` AND is_unique = 1`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Count > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Count)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("get memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetMemoriesByRoomIDs returns records from any of the given rooms, newest
// first, capped at limit.
func (s *Store) GetMemoriesByRoomIDs(ctx context.Context, table string, roomIDs []string, limit int) ([]*core.Memory, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roomIDs)), ",")
	query := fmt.Sprintf(`SELECT id, room_id, entity_id, agent_id, content, embedding, metadata, is_unique, created_at
		FROM memories WHERE tbl = ? AND room_id IN (%s)
		ORDER BY created_at DESC, rowid DESC`, placeholders)
	args := make([]any, 0, len(roomIDs)+2)
	args = append(args, table)
	for _, id := range roomIDs {
		args = append(args, id)
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("get memories by rooms", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemoriesByEmbedding ranks stored embeddings by cosine similarity to
// the query, dropping results below the threshold.
func (s *Store) SearchMemoriesByEmbedding(ctx context.Context, embedding []float32, f core.SearchFilter) ([]*core.Memory, error) {
	query := `SELECT id, room_id, entity_id, agent_id, content, embedding, metadata, is_unique, created_at
		FROM memories WHERE tbl = ? AND embedding IS NOT NULL`
	args := []any{f.Table}
	if f.RoomID != "" {
		query += ` AND room_id = ?`
		args = append(args, f.RoomID)
	}
	if f.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, f.AgentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("search memories", err)
	}
	defer rows.Close()

	all, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	type scored struct {
		mem   *core.Memory
		score float64
	}
	var matched []scored
	for _, m := range all {
		score := memory.CosineSimilarity(embedding, m.Embedding)
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
		out[i] = sc.mem
	}
	return out, nil
}

// GetEntityByID returns the entity or core.ErrNotFound.
func (s *Store) GetEntityByID(ctx context.Context, id string) (*core.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, names, metadata FROM entities WHERE id = ?`, id)
	var e core.Entity
	var names string
	var metadata sql.NullString
	if err := row.Scan(&e.ID, &names, &metadata); err != nil {
		return nil, wrap("get entity", err)
	}
	if err := json.Unmarshal([]byte(names), &e.Names); err != nil {
		return nil, fmt.Errorf("decode entity names: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode entity metadata: %w", err)
		}
	}
	return &e, nil
}

// CreateEntity inserts an entity; creating an existing one is a no-op.
func (s *Store) CreateEntity(ctx context.Context, e *core.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	names, metadata, err := encodeEntity(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entities (id, names, metadata) VALUES (?, ?, ?)`,
		e.ID, names, metadata)
	return wrap("create entity", err)
}

// UpdateEntity replaces a stored entity, returning core.ErrNotFound when it
// was never created.
func (s *Store) UpdateEntity(ctx context.Context, e *core.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	names, metadata, err := encodeEntity(e)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET names = ?, metadata = ? WHERE id = ?`,
		names, metadata, e.ID)
	if err != nil {
		return wrap("update entity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update entity", err)
	}
	if n == 0 {
		return fmt.Errorf("update entity %s: %w", e.ID, core.ErrNotFound)
	}
	return nil
}

// GetRoom returns the room or core.ErrNotFound.
func (s *Store) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, world_id, name, type, source FROM rooms WHERE id = ?`, id)
	var r core.Room
	var worldID, name, source sql.NullString
	var typ string
	if err := row.Scan(&r.ID, &worldID, &name, &typ, &source); err != nil {
		return nil, wrap("get room", err)
	}
	r.WorldID = worldID.String
	r.Name = name.String
	r.Type = core.ChannelType(typ)
	r.Source = source.String
	return &r, nil
}

// CreateRoom inserts a room; creating an existing one is a no-op.
func (s *Store) CreateRoom(ctx context.Context, r *core.Room) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rooms (id, world_id, name, type, source) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.WorldID, r.Name, string(r.Type), r.Source)
	return wrap("create room", err)
}

// GetRoomsForParticipants returns ids of rooms where any of the given
// entities participate.
func (s *Store) GetRoomsForParticipants(ctx context.Context, entityIDs []string) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entityIDs)), ",")
	query := fmt.Sprintf(`SELECT DISTINCT room_id FROM participants WHERE entity_id IN (%s) ORDER BY room_id`, placeholders)
	args := make([]any, len(entityIDs))
	for i, id := range entityIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("get rooms for participants", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap("get rooms for participants", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddParticipant links an entity to a room. Re-linking is a no-op; linking
// to an unknown room surfaces core.ErrConstraint.
func (s *Store) AddParticipant(ctx context.Context, roomID, entityID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO participants (room_id, entity_id) VALUES (?, ?)`,
		roomID, entityID)
	return wrap("add participant", err)
}

// EnsureWorld upserts a world record.
func (s *Store) EnsureWorld(ctx context.Context, w *core.World) error {
	if w == nil || w.ID == "" {
		return fmt.Errorf("world id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worlds (id, name, source) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, source = excluded.source`,
		w.ID, w.Name, w.Source)
	return wrap("ensure world", err)
}

func scanMemories(rows *sql.Rows) ([]*core.Memory, error) {
	var out []*core.Memory
	for rows.Next() {
		var m core.Memory
		var content string
		var embedding []byte
		var metadata sql.NullString
		var isUnique int
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.RoomID, &m.EntityID, &m.AgentID, &content, &embedding, &metadata, &isUnique, &createdAt); err != nil {
			return nil, wrap("scan memory", err)
		}
		if err := json.Unmarshal([]byte(content), &m.Content); err != nil {
			return nil, fmt.Errorf("decode memory content: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode memory metadata: %w", err)
			}
		}
		m.Embedding = decodeEmbedding(embedding)
		m.Unique = isUnique != 0
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

func encodeEntity(e *core.Entity) (string, any, error) {
	names, err := json.Marshal(e.Names)
	if err != nil {
		return "", nil, fmt.Errorf("encode entity names: %w", err)
	}
	var metadata []byte
	if e.Metadata != nil {
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return "", nil, fmt.Errorf("encode entity metadata: %w", err)
		}
	}
	return string(names), nullableText(metadata), nil
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

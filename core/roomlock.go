package core

import "sync"

// RoomLocker serializes turn processing per room. Handlers for the same room
// must never interleave state composition, so the message handler holds the
// room's lock for the whole turn; distinct rooms proceed concurrently.
//
// Entries are reference counted and removed when the last holder releases,
// keeping the map bounded by the number of rooms with in-flight turns.
type RoomLocker struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// NewRoomLocker returns an empty per-room lock table.
func NewRoomLocker() *RoomLocker {
	return &RoomLocker{locks: make(map[string]*roomLock)}
}

// Lock acquires the mutex for key, blocking while another turn for the same
// key is in flight.
func (r *RoomLocker) Lock(key string) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &roomLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry once no other turn
// is waiting on it.
func (r *RoomLocker) Unlock(key string) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if ok {
		l.refs--
		if l.refs <= 0 {
			delete(r.locks, key)
		}
	}
	r.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}

package realtime

import (
	"sync"
	"time"

	"github.com/mcoot/typeroom/internal/model"
)

// roomEntry holds the live sessions of one room
type roomEntry struct {
	mu       sync.Mutex
	sessions map[model.UserID]Session
	room     *model.Room // cached durable row, nil until hydrated
	removed  bool        // set once the entry has been dropped from the registry
}

// Registry maps room codes to their connected sessions.
// Each room has its own lock; the map of rooms has a separate short-lived lock.
type Registry struct {
	mu    sync.Mutex
	rooms map[model.RoomCode]*roomEntry
}

// RegistryStats is a point-in-time count of live state
type RegistryStats struct {
	Rooms    int `json:"rooms"`
	Sessions int `json:"sessions"`
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[model.RoomCode]*roomEntry)}
}

func (r *Registry) entry(code model.RoomCode, create bool) *roomEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rooms[code]
	if !ok && create {
		e = &roomEntry{sessions: make(map[model.UserID]Session)}
		r.rooms[code] = e
	}
	return e
}

// drop removes an emptied entry, unless it has already been replaced
func (r *Registry) drop(code model.RoomCode, e *roomEntry) {
	r.mu.Lock()
	if r.rooms[code] == e {
		delete(r.rooms, code)
	}
	r.mu.Unlock()
}

// Attach registers s for its room and user. A session already registered for
// the same pair is returned after being closed.
func (r *Registry) Attach(s Session) Session {
	code := s.RoomCode()
	for {
		e := r.entry(code, true)

		e.mu.Lock()
		if e.removed {
			// Lost a race with the last detach; the entry is on its way out
			e.mu.Unlock()
			r.drop(code, e)
			continue
		}
		prev := e.sessions[s.UserID()]
		e.sessions[s.UserID()] = s
		e.mu.Unlock()

		if prev != nil && prev != s {
			prev.Close(CloseNormal, ReasonReplaced)
			return prev
		}
		return nil
	}
}

// Detach removes s if it is still the registered session for its pair.
// removed reports whether s was registered; roomEmpty whether the room entry was dropped.
func (r *Registry) Detach(s Session) (removed, roomEmpty bool) {
	code := s.RoomCode()
	e := r.entry(code, false)
	if e == nil {
		return false, false
	}

	e.mu.Lock()
	if cur, ok := e.sessions[s.UserID()]; ok && cur.ID() == s.ID() {
		delete(e.sessions, s.UserID())
		removed = true
	}
	if len(e.sessions) == 0 && !e.removed {
		e.removed = true
		roomEmpty = true
	}
	e.mu.Unlock()

	if roomEmpty {
		r.drop(code, e)
	}
	return removed, roomEmpty
}

// Sessions returns a snapshot of the sessions connected to a room
func (r *Registry) Sessions(code model.RoomCode) []Session {
	e := r.entry(code, false)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// Session returns the session registered for a user in a room
func (r *Registry) Session(code model.RoomCode, userID model.UserID) (Session, bool) {
	e := r.entry(code, false)
	if e == nil {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	return s, ok
}

// IsEmpty reports whether no session is connected to the room
func (r *Registry) IsEmpty(code model.RoomCode) bool {
	e := r.entry(code, false)
	if e == nil {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions) == 0
}

// Hydrate caches the durable room row for a live room. The cached status
// never moves backwards. Rooms without an entry are ignored.
func (r *Registry) Hydrate(room model.Room) {
	e := r.entry(room.Code, false)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room != nil && statusRank(e.room.Status) > statusRank(room.Status) {
		room.Status = e.room.Status
		room.StartedAt = e.room.StartedAt
		room.CompletedAt = e.room.CompletedAt
	}
	e.room = &room
}

// Room returns the cached room row
func (r *Registry) Room(code model.RoomCode) (model.Room, bool) {
	e := r.entry(code, false)
	if e == nil {
		return model.Room{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil {
		return model.Room{}, false
	}
	return *e.room, true
}

// AdvanceStatus moves the cached status forward. Backward or unknown moves are ignored.
func (r *Registry) AdvanceStatus(code model.RoomCode, status model.RoomStatus, at time.Time) bool {
	e := r.entry(code, false)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil || statusRank(status) <= statusRank(e.room.Status) {
		return false
	}
	e.room.Status = status
	switch status {
	case model.RoomStatusInProgress:
		e.room.StartedAt = &at
	case model.RoomStatusCompleted:
		e.room.CompletedAt = &at
	}
	return true
}

// Stats counts live rooms and sessions
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	stats := RegistryStats{}
	for _, e := range entries {
		e.mu.Lock()
		if len(e.sessions) > 0 {
			stats.Rooms++
			stats.Sessions += len(e.sessions)
		}
		e.mu.Unlock()
	}
	return stats
}

// CloseAll closes every session, used on shutdown
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		sessions := make([]Session, 0, len(e.sessions))
		for _, s := range e.sessions {
			sessions = append(sessions, s)
		}
		e.mu.Unlock()

		for _, s := range sessions {
			s.Close(code, reason)
		}
	}
}

func statusRank(s model.RoomStatus) int {
	switch s {
	case model.RoomStatusWaiting:
		return 1
	case model.RoomStatusInProgress:
		return 2
	case model.RoomStatusCompleted:
		return 3
	}
	return 0
}

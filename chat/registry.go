// Package chat implements live room messaging: which sessions sit in which
// room, how many messages a room keeps, and pushing new messages to the
// sessions of a room.
package chat

import "sync"

// Registry tracks which connected sessions are in which room. A session is
// in at most one room at a time.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[uint]map[string]struct{}
	sessions map[string]uint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[uint]map[string]struct{}),
		sessions: make(map[string]uint),
	}
}

// Join puts the session in roomID, removing it from any room it was in.
func (r *Registry) Join(sessionID string, roomID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(sessionID)

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[sessionID] = struct{}{}
	r.sessions[sessionID] = roomID
}

// Leave removes the session from its room. It reports whether the session
// was in a room.
func (r *Registry) Leave(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID)
}

func (r *Registry) leaveLocked(sessionID string) bool {
	roomID, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(r.sessions, sessionID)
	if members, ok := r.rooms[roomID]; ok {
		delete(members, sessionID)
		// Clean up empty rooms
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return true
}

// MembersOf returns a snapshot of the sessions currently in roomID.
func (r *Registry) MembersOf(roomID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// RoomOf returns the room the session is in.
func (r *Registry) RoomOf(sessionID string) (uint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.sessions[sessionID]
	return roomID, ok
}

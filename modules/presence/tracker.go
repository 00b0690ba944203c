package presence

import (
	"sort"
	"sync"

	domain "github.com/example/company-chat/domain/chat"
)

// principalPresence is one principal online in a room through one or more connections.
type principalPresence struct {
	entry domain.PresenceEntry
	conns map[string]struct{}
}

// Tracker is the in-memory presence index. A principal is present in a room
// while at least one of its connections is joined to that room. Nothing here
// is persisted.
type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*principalPresence // roomID -> principalID -> presence
	conns map[string]map[string]string             // connID -> roomID -> principalID
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		rooms: make(map[string]map[string]*principalPresence),
		conns: make(map[string]map[string]string),
	}
}

// Join records connID of entry.PrincipalID as joined to roomID. It reports
// whether the principal was not present before.
func (t *Tracker) Join(roomID, connID string, entry domain.PresenceEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.rooms[roomID]
	if room == nil {
		room = make(map[string]*principalPresence)
		t.rooms[roomID] = room
	}
	p, existed := room[entry.PrincipalID]
	if !existed {
		p = &principalPresence{entry: entry, conns: make(map[string]struct{})}
		room[entry.PrincipalID] = p
	}
	p.conns[connID] = struct{}{}

	joined := t.conns[connID]
	if joined == nil {
		joined = make(map[string]string)
		t.conns[connID] = joined
	}
	joined[roomID] = entry.PrincipalID

	return !existed
}

// Leave removes connID from roomID. It reports whether the principal's
// presence in the room ended.
func (t *Tracker) Leave(roomID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(roomID, connID)
}

// LeavePrincipal removes every connection of principalID from roomID and
// returns the connection ids that were joined.
func (t *Tracker) LeavePrincipal(roomID, principalID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.rooms[roomID][principalID]
	if !ok {
		return nil
	}
	conns := make([]string, 0, len(p.conns))
	for connID := range p.conns {
		conns = append(conns, connID)
	}
	for _, connID := range conns {
		t.leaveLocked(roomID, connID)
	}
	sort.Strings(conns)
	return conns
}

// DropConnection removes connID from every room and returns the rooms in
// which its principal is no longer present.
func (t *Tracker) DropConnection(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ended []string
	for roomID := range t.conns[connID] {
		if t.leaveLocked(roomID, connID) {
			ended = append(ended, roomID)
		}
	}
	delete(t.conns, connID)
	sort.Strings(ended)
	return ended
}

// DropRoom discards all presence for roomID.
func (t *Tracker) DropRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range t.rooms[roomID] {
		for connID := range p.conns {
			t.forgetConnLocked(connID, roomID)
		}
	}
	delete(t.rooms, roomID)
}

// Snapshot returns who is online in roomID, ordered by display name.
func (t *Tracker) Snapshot(roomID string) []domain.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.rooms[roomID]
	entries := make([]domain.PresenceEntry, 0, len(room))
	for _, p := range room {
		entries = append(entries, p.entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].PrincipalID < entries[j].PrincipalID
	})
	return entries
}

// Count returns how many principals are online in roomID.
func (t *Tracker) Count(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[roomID])
}

// IsPresent reports whether principalID is online in roomID.
func (t *Tracker) IsPresent(roomID, principalID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[roomID][principalID]
	return ok
}

// Stats returns the number of rooms and connections tracked.
func (t *Tracker) Stats() (rooms, conns int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms), len(t.conns)
}

func (t *Tracker) leaveLocked(roomID, connID string) bool {
	principalID, ok := t.conns[connID][roomID]
	if !ok {
		return false
	}
	t.forgetConnLocked(connID, roomID)

	room := t.rooms[roomID]
	p := room[principalID]
	if p == nil {
		return false
	}
	delete(p.conns, connID)
	if len(p.conns) > 0 {
		return false
	}
	delete(room, principalID)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

func (t *Tracker) forgetConnLocked(connID, roomID string) {
	joined := t.conns[connID]
	delete(joined, roomID)
	if len(joined) == 0 {
		delete(t.conns, connID)
	}
}

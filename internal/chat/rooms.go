package chat

import "sync"

// Sink receives membership change notifications. Implementations must not
// block: callbacks run while the room lock is held so that observers see
// join/leave events in the same order the membership changed.
type Sink interface {
	// MemberJoined fires after a connection joins; members holds the other
	// current members (the joiner is excluded, matching the original
	// behavior of notifying everyone but the new arrival).
	MemberJoined(roomKey string, members []string, label string)
	// MemberLeft fires after a connection leaves; members holds the
	// remaining members.
	MemberLeft(roomKey string, members []string, label string)
}

type room struct {
	mu      sync.Mutex
	members map[string]struct{} // connection ids
	seq     uint64              // last assigned message sequence number
	gone    bool                // set when the room was removed from the table
}

// Rooms is the authoritative membership table: room key -> member set.
// All membership mutation goes through here so the registry's joined-room
// sets and the member sets stay symmetric. Each room has its own lock, so
// operations on different rooms never block each other; the table lock is
// held only for map lookups.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*room

	reg  *Registry
	sink Sink
}

func NewRooms(reg *Registry, sink Sink) *Rooms {
	return &Rooms{rooms: map[string]*room{}, reg: reg, sink: sink}
}

// get returns the room for key, or nil.
func (rs *Rooms) get(key string) *room {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.rooms[key]
}

// getOrCreate returns a live room for key, creating it if needed. Loops in
// case the fetched room is concurrently emptied and deleted.
func (rs *Rooms) getOrCreate(key string) *room {
	for {
		rs.mu.Lock()
		rm := rs.rooms[key]
		if rm == nil {
			rm = &room{members: map[string]struct{}{}}
			rs.rooms[key] = rm
		}
		rs.mu.Unlock()

		rm.mu.Lock()
		if !rm.gone {
			return rm // caller holds rm.mu
		}
		rm.mu.Unlock()
	}
}

// Join adds connID to the room, creating it if absent, and returns the
// updated presence count. Joining twice is a no-op. Other members are
// notified through the sink.
func (rs *Rooms) Join(roomKey, connID string) int {
	label := rs.labelOf(connID)

	rm := rs.getOrCreate(roomKey)
	defer rm.mu.Unlock()

	if _, already := rm.members[connID]; already {
		return len(rm.members)
	}
	others := snapshot(rm.members)
	rm.members[connID] = struct{}{}
	rs.reg.roomJoined(connID, roomKey)

	if rs.sink != nil && len(others) > 0 {
		rs.sink.MemberJoined(roomKey, others, label)
	}
	return len(rm.members)
}

// Leave removes connID from the room and returns the remaining presence
// count plus whether the now-empty room was deleted. Leaving a room the
// connection is not in (or that does not exist) is a no-op.
func (rs *Rooms) Leave(roomKey, connID string) (int, bool) {
	rm := rs.get(roomKey)
	if rm == nil {
		return 0, false
	}

	rm.mu.Lock()
	if rm.gone {
		rm.mu.Unlock()
		return 0, false
	}
	if _, member := rm.members[connID]; !member {
		n := len(rm.members)
		rm.mu.Unlock()
		return n, false
	}
	label := rs.labelOf(connID)
	delete(rm.members, connID)
	rs.reg.roomLeft(connID, roomKey)
	remaining := snapshot(rm.members)
	deleted := len(remaining) == 0
	if deleted {
		rm.gone = true
	}
	if rs.sink != nil && len(remaining) > 0 {
		rs.sink.MemberLeft(roomKey, remaining, label)
	}
	rm.mu.Unlock()

	if deleted {
		rs.mu.Lock()
		if rs.rooms[roomKey] == rm {
			delete(rs.rooms, roomKey)
		}
		rs.mu.Unlock()
	}
	return len(remaining), deleted
}

// LeaveAll leaves every given room; unknown rooms are silently skipped.
// Used on disconnect with the room set returned by Registry.Deregister.
func (rs *Rooms) LeaveAll(connID string, roomKeys []string) {
	for _, key := range roomKeys {
		rs.Leave(key, connID)
	}
}

// PresenceCount returns the member count for a room, 0 if it does not exist.
func (rs *Rooms) PresenceCount(roomKey string) int {
	rm := rs.get(roomKey)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.gone {
		return 0
	}
	return len(rm.members)
}

// MembersOf returns a snapshot of the room's member connection ids, empty
// if the room does not exist.
func (rs *Rooms) MembersOf(roomKey string) []string {
	rm := rs.get(roomKey)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.gone {
		return nil
	}
	return snapshot(rm.members)
}

// NextSeq assigns the room's next message sequence number to connID.
// Fails with ErrNotAMember unless connID currently belongs to the room, so
// successful publishes get strictly increasing, gap-free numbers.
func (rs *Rooms) NextSeq(roomKey, connID string) (uint64, error) {
	rm := rs.get(roomKey)
	if rm == nil {
		return 0, ErrNotAMember
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.gone {
		return 0, ErrNotAMember
	}
	if _, member := rm.members[connID]; !member {
		return 0, ErrNotAMember
	}
	rm.seq++
	return rm.seq, nil
}

// Snapshot returns room key -> presence count for every active room.
func (rs *Rooms) Snapshot() map[string]int {
	rs.mu.RLock()
	keys := make([]string, 0, len(rs.rooms))
	for k := range rs.rooms {
		keys = append(keys, k)
	}
	rs.mu.RUnlock()

	out := make(map[string]int, len(keys))
	for _, k := range keys {
		if n := rs.PresenceCount(k); n > 0 {
			out[k] = n
		}
	}
	return out
}

func (rs *Rooms) labelOf(connID string) string {
	id, err := rs.reg.IdentityOf(connID)
	if err != nil {
		return "Anonymous"
	}
	return id.Label
}

func snapshot(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

package chat

import "sync"

// Identity is the display label + optional authenticated user id of a connection.
// The label starts as "Anonymous" and is updated once the client joins a room
// with a user_email.
type Identity struct {
	Label  string
	UserID string
}

type connection struct {
	identity Identity
	rooms    map[string]struct{} // room keys currently joined
}

// Registry maps live connection ids to their identity and joined rooms.
// Membership itself is mutated only by Rooms (via roomJoined/roomLeft), so the
// joined-room set here and the member sets in Rooms always move together.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{conns: map[string]*connection{}}
}

// Register records a new connection. Must be called exactly once per
// connection id before any room operation.
func (r *Registry) Register(connID string, id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[connID]; exists {
		return ErrDuplicateConnection
	}
	if id.Label == "" {
		id.Label = "Anonymous"
	}
	r.conns[connID] = &connection{identity: id, rooms: map[string]struct{}{}}
	return nil
}

// IdentityOf returns the identity of a registered connection.
func (r *Registry) IdentityOf(connID string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return Identity{}, ErrUnknownConnection
	}
	return c.identity, nil
}

// SetLabel updates the display label for a connection. The user id, once
// bound at registration, never changes.
func (r *Registry) SetLabel(connID, label string) error {
	if label == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	c.identity.Label = label
	return nil
}

// Deregister removes a connection and returns the room keys it was in.
// Idempotent: a second call (or an unknown id) returns nil, so the transport
// may deliver disconnects more than once.
func (r *Registry) Deregister(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	keys := make([]string, 0, len(c.rooms))
	for k := range c.rooms {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// roomJoined / roomLeft keep the connection's joined-room set in step with
// room membership. Called only by Rooms while it holds the room lock.

func (r *Registry) roomJoined(connID, roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		c.rooms[roomKey] = struct{}{}
	}
}

func (r *Registry) roomLeft(connID, roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		delete(c.rooms, roomKey)
	}
}

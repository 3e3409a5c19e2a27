package core

import "sync"

// Registry owns the live connection state: which client belongs to which
// user, and which clients are subscribed to which room (the broadcast
// groups). It is the only holder of this mapping; all access is serialized
// through its mutex and no method performs I/O.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connection id -> client
	byUser  map[int64]map[string]*Client  // user id -> connection id -> client
	groups  map[int64]map[string]*Client  // room id -> connection id -> client
	subs    map[string]map[int64]struct{} // connection id -> room ids
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		byUser:  make(map[int64]map[string]*Client),
		groups:  make(map[int64]map[string]*Client),
		subs:    make(map[string]map[int64]struct{}),
	}
}

// Register associates a live client with its user. Idempotent per
// connection id.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.ID]; exists {
		return
	}
	r.clients[c.ID] = c
	conns := r.byUser[c.UserID]
	if conns == nil {
		conns = make(map[string]*Client)
		r.byUser[c.UserID] = conns
	}
	conns[c.ID] = c
	r.subs[c.ID] = make(map[int64]struct{})
}

// Unregister removes the connection and all its subscriptions. Returns true
// if it was the user's last connection (the user went offline).
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[connID]
	if !exists {
		return false
	}

	for roomID := range r.subs[connID] {
		delete(r.groups[roomID], connID)
		if len(r.groups[roomID]) == 0 {
			delete(r.groups, roomID)
		}
	}
	delete(r.subs, connID)
	delete(r.clients, connID)

	conns := r.byUser[c.UserID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID)
		return true
	}
	return false
}

// ConnectionsOf returns a snapshot of the user's live clients.
func (r *Registry) ConnectionsOf(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Client, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Subscribe adds the connection to a room's broadcast group. Membership
// checks belong to the session layer; the registry only does bookkeeping.
func (r *Registry) Subscribe(connID string, roomID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[connID]
	if !exists {
		return false
	}
	group := r.groups[roomID]
	if group == nil {
		group = make(map[string]*Client)
		r.groups[roomID] = group
	}
	group[connID] = c
	r.subs[connID][roomID] = struct{}{}
	return true
}

// Unsubscribe removes the connection from a room's broadcast group.
func (r *Registry) Unsubscribe(connID string, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[connID]; !exists {
		return
	}
	delete(r.groups[roomID], connID)
	if len(r.groups[roomID]) == 0 {
		delete(r.groups, roomID)
	}
	delete(r.subs[connID], roomID)
}

// Group returns a snapshot of the clients currently subscribed to the room.
// The slice is safe to iterate while connections come and go.
func (r *Registry) Group(roomID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := make([]*Client, 0, len(r.groups[roomID]))
	for _, c := range r.groups[roomID] {
		group = append(group, c)
	}
	return group
}

// DropGroup removes every subscription to the room and returns the clients
// that were subscribed. Used when a room is deleted.
func (r *Registry) DropGroup(roomID int64) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	group := r.groups[roomID]
	dropped := make([]*Client, 0, len(group))
	for connID, c := range group {
		delete(r.subs[connID], roomID)
		dropped = append(dropped, c)
	}
	delete(r.groups, roomID)
	return dropped
}

package realtime

import (
	"sync"
)

// Registry concurrent-safe map of identity -> live connection set.
// It exclusively owns connection liveness bookkeeping; the Router only reads
// it for delivery targeting.
type Registry struct {
	mu     sync.RWMutex
	conns  map[int64]map[string]*Connection // userID -> connection ID -> connection
	owners map[string]int64                 // connection ID -> owning userID
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[int64]map[string]*Connection),
		owners: make(map[string]int64),
	}
}

// Register adds a connection under its identity. Idempotent per connection
// handle: registering the same handle twice is a no-op after the first.
// Returns true when this is the identity's first live connection.
func (r *Registry) Register(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.owners[conn.ID]; exists {
		return false
	}

	first := len(r.conns[conn.UserID]) == 0
	if r.conns[conn.UserID] == nil {
		r.conns[conn.UserID] = make(map[string]*Connection)
	}
	r.conns[conn.UserID][conn.ID] = conn
	r.owners[conn.ID] = conn.UserID
	return first
}

// Deregister removes a connection from whatever identity owns it. No-op when
// already absent, so racing timeout and explicit-close teardowns are safe.
// Returns true when the owning identity has no live connections left.
func (r *Registry) Deregister(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[conn.ID]
	if !ok {
		return false
	}

	delete(r.owners, conn.ID)
	delete(r.conns[userID], conn.ID)
	if len(r.conns[userID]) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// Lookup returns a snapshot of an identity's live connections; empty when offline
func (r *Registry) Lookup(userID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns[userID]))
	for _, c := range r.conns[userID] {
		conns = append(conns, c)
	}
	return conns
}

// LookupMany returns a snapshot of the live connections of several identities
func (r *Registry) LookupMany(userIDs []int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Connection
	for _, id := range userIDs {
		for _, c := range r.conns[id] {
			conns = append(conns, c)
		}
	}
	return conns
}

// Online reports whether an identity holds at least one live connection
func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// ConnectionCount total live connections across all identities
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

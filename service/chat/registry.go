package chat

import (
	"sync"
)

// Registry is the presence registry: userID -> live connections. A user
// key exists iff its connection set is non-empty; the empty->non-empty and
// non-empty->empty transitions are the authoritative online/offline
// signals, reported by Add and Remove so the caller broadcasts exactly
// once. Add/remove are read-modify-write, hence the single write lock.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Client // user -> conn_id -> conn
	byConn map[string]*Client            // conn_id -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Client),
		byConn: make(map[string]*Client),
	}
}

// Add registers the connection under its user. Returns true when this is
// the user's first live connection (the user just came online).
func (r *Registry) Add(c *Client) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[c.UserID] = m
		first = true
	}
	m[c.ConnID] = c
	r.byConn[c.ConnID] = c
	return first
}

// Remove deregisters the connection. Returns true when the user's set
// became empty (the user just went offline). Idempotent.
func (r *Registry) Remove(c *Client) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m := r.byUser[c.UserID]; m != nil {
		if _, ok := m[c.ConnID]; ok {
			delete(m, c.ConnID)
			if len(m) == 0 {
				delete(r.byUser, c.UserID)
				last = true
			}
		}
	}
	delete(r.byConn, c.ConnID)
	return last
}

// ConnectionsOf returns the user's live connections; empty is a valid,
// non-error result.
func (r *Registry) ConnectionsOf(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// All lists every registered connection (broadcast targets).
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

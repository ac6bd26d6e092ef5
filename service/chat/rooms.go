package chat

import (
	"sync"
)

// Rooms tracks which connections currently have a chat open and should
// receive its live events. The UI keeps one chat open at a time but the
// membership itself places no such limit; a connection accumulates rooms
// over its life and LeaveAll drops them on disconnect. Stale entries are
// harmless either way since sends to dead connections are silently
// dropped.
type Rooms struct {
	mu     sync.RWMutex
	byChat map[string]map[string]*Client  // chat_id -> conn_id -> conn
	byConn map[string]map[string]struct{} // conn_id -> chat ids, for LeaveAll
}

func NewRooms() *Rooms {
	return &Rooms{
		byChat: make(map[string]map[string]*Client),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes the connection to a chat. Created lazily, idempotent.
func (r *Rooms) Join(chatID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byChat[chatID]
	if m == nil {
		m = make(map[string]*Client)
		r.byChat[chatID] = m
	}
	m[c.ConnID] = c

	ids := r.byConn[c.ConnID]
	if ids == nil {
		ids = make(map[string]struct{})
		r.byConn[c.ConnID] = ids
	}
	ids[chatID] = struct{}{}
}

// LeaveAll removes the connection from every room it joined. Empty rooms
// are pruned; the next Join recreates them.
func (r *Rooms) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chatID := range r.byConn[c.ConnID] {
		if m := r.byChat[chatID]; m != nil {
			delete(m, c.ConnID)
			if len(m) == 0 {
				delete(r.byChat, chatID)
			}
		}
	}
	delete(r.byConn, c.ConnID)
}

// Members returns the connections currently inside the chat.
func (r *Rooms) Members(chatID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byChat[chatID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

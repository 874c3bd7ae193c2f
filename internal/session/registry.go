package session

import "sync"

// Registry maps a user id to its current connection handle. At most one
// handle per user; registering again overwrites.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry { return &Registry{clients: make(map[string]*Client)} }

// Register installs c for userID and returns the handle it replaced, if any.
// The replaced handle is not closed here.
func (r *Registry) Register(userID string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[userID]
	r.clients[userID] = c
	return prev
}

func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, userID)
}

// UnregisterIf removes the mapping only while it still points at c.
func (r *Registry) UnregisterIf(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[userID]; ok && cur == c {
		delete(r.clients, userID)
		return true
	}
	return false
}

func (r *Registry) Get(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Send is best-effort, at-most-once: a missing or closed handle drops msg.
func (r *Registry) Send(userID string, msg []byte) bool {
	c, ok := r.Get(userID)
	if !ok {
		return false
	}
	return c.Send(msg)
}

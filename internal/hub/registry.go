package hub

import "sync"

// registry is the set of Active connections.
type registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*Conn)}
}

// add inserts c unless the registry has been shut down.
func (r *registry) add(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.conns[c.ID] = c
	return true
}

// remove deletes the connection with id and reports whether it was present.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

// snapshot returns the connections registered at the time of the call.
func (r *registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// closeAll empties the registry, refuses further inserts and returns what was
// registered.
func (r *registry) closeAll() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	out := make([]*Conn, 0, len(r.conns))
	for id, c := range r.conns {
		out = append(out, c)
		delete(r.conns, id)
	}
	return out
}

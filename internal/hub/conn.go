package hub

import (
	"sync"
	"time"

	"github.com/nfrund/relay/internal/domain"
)

// Conn is one Active connection held in the hub registry.
type Conn struct {
	ID          string
	Identity    domain.Identity
	ExpiresAt   time.Time
	ConnectedAt time.Time

	// send is the outbound queue. It is closed exactly once, under mu, when
	// the connection leaves the registry.
	send   chan domain.ChatMessage
	mu     sync.Mutex
	closed bool
}

func newConn(id string, session domain.Session, buffer int, now time.Time) *Conn {
	return &Conn{
		ID:          id,
		Identity:    session.Identity,
		ExpiresAt:   session.ExpiresAt,
		ConnectedAt: now,
		send:        make(chan domain.ChatMessage, buffer),
	}
}

// Messages returns the outbound queue. It is closed on disconnect.
func (c *Conn) Messages() <-chan domain.ChatMessage {
	return c.send
}

// Closed reports whether the connection has been disconnected.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type delivery int

const (
	delivered delivery = iota
	queueFull
	connClosed
)

// deliver enqueues msg without blocking. A closed connection receives
// nothing.
func (c *Conn) deliver(msg domain.ChatMessage) delivery {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return connClosed
	}
	select {
	case c.send <- msg:
		return delivered
	default:
		return queueFull
	}
}

// close marks the connection closed and closes its queue. It reports whether
// this call did the closing.
func (c *Conn) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

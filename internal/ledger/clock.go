package ledger

import (
	"sync"
	"time"
)

// Clock hands out millisecond UTC timestamps that strictly increase, so
// ordering history by timestamp matches append order even when two appends
// land in the same millisecond.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock returns a Clock reading from now, or time.Now when now is nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Stamp returns the next timestamp.
func (c *Clock) Stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}

// Observe records a timestamp already in storage so later stamps sort after it.
func (c *Clock) Observe(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t = t.UTC().Truncate(time.Millisecond)
	if t.After(c.last) {
		c.last = t
	}
}

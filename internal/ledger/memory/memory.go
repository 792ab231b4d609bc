// Package memory is an in-process ledger used for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

// Ledger keeps messages in a slice. Contents are lost when the process exits.
type Ledger struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	clock    *ledger.Clock
	closed   bool
}

var _ ledger.Ledger = (*Ledger)(nil)

// New returns an empty ledger. now may be nil.
func New(now func() time.Time) *Ledger {
	return &Ledger{clock: ledger.NewClock(now)}
}

// Append implements ledger.Ledger.
func (l *Ledger) Append(ctx context.Context, username, content string) (domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domain.ChatMessage{}, ledger.Unavailable("append message", domain.ErrConnectionClosed)
	}

	msg := domain.ChatMessage{
		Seq:       int64(len(l.messages) + 1),
		Username:  username,
		Content:   content,
		Timestamp: l.clock.Stamp(),
	}
	l.messages = append(l.messages, msg)
	return msg, nil
}

// Recent implements ledger.Ledger.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, ledger.Unavailable("recent messages", err)
	}
	limit = ledger.NormalizeLimit(limit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.ChatMessage, len(l.messages)-start)
	copy(out, l.messages[start:])
	return out, nil
}

// Close implements ledger.Ledger.
func (l *Ledger) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

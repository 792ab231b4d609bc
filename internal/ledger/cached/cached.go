// Package cached decorates a ledger with an LRU cache of Recent pages.
package cached

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

// Ledger caches Recent results keyed by limit. Every successful Append
// purges the cache, so a cached page never misses a message.
type Ledger struct {
	next  ledger.Ledger
	cache *lru.Cache[int, []domain.ChatMessage]
	// mu orders purges after appends against fills after reads.
	mu sync.RWMutex
}

var _ ledger.Ledger = (*Ledger)(nil)

// New wraps next with a cache holding up to size distinct limits.
func New(next ledger.Ledger, size int) (*Ledger, error) {
	cache, err := lru.New[int, []domain.ChatMessage](size)
	if err != nil {
		return nil, fmt.Errorf("create history cache: %w", err)
	}
	return &Ledger{next: next, cache: cache}, nil
}

// Append implements ledger.Ledger.
func (l *Ledger) Append(ctx context.Context, username, content string) (domain.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg, err := l.next.Append(ctx, username, content)
	if err != nil {
		return msg, err
	}
	l.cache.Purge()
	return msg, nil
}

// Recent implements ledger.Ledger.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	limit = ledger.NormalizeLimit(limit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if page, ok := l.cache.Get(limit); ok {
		return clone(page), nil
	}

	page, err := l.next.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	l.cache.Add(limit, clone(page))
	return page, nil
}

// Close implements ledger.Ledger.
func (l *Ledger) Close() error {
	l.cache.Purge()
	return l.next.Close()
}

func clone(page []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(page))
	copy(out, page)
	return out
}

package cached

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
	"github.com/nfrund/relay/internal/ledger/ledgertest"
	"github.com/nfrund/relay/internal/ledger/memory"
)

// countingLedger counts Recent calls reaching the backend.
type countingLedger struct {
	ledger.Ledger
	recentCalls int
	failRecent  error
}

func (c *countingLedger) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	c.recentCalls++
	if c.failRecent != nil {
		return nil, c.failRecent
	}
	return c.Ledger.Recent(ctx, limit)
}

func TestLedgerConformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		l, err := New(memory.New(nil), 8)
		require.NoError(t, err)
		return l
	})
}

func TestNewInvalidSize(t *testing.T) {
	_, err := New(memory.New(nil), 0)
	assert.Error(t, err)
}

func TestRecentIsCachedUntilAppend(t *testing.T) {
	backend := &countingLedger{Ledger: memory.New(nil)}
	l, err := New(backend, 4)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = l.Append(ctx, "alice", "one")
	require.NoError(t, err)

	_, err = l.Recent(ctx, 10)
	require.NoError(t, err)
	_, err = l.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.recentCalls)

	_, err = l.Append(ctx, "bob", "two")
	require.NoError(t, err)

	msgs, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.recentCalls)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[1].Content)
}

func TestRecentErrorNotCached(t *testing.T) {
	backend := &countingLedger{Ledger: memory.New(nil), failRecent: errors.New("down")}
	l, err := New(backend, 4)
	require.NoError(t, err)

	_, err = l.Recent(context.Background(), 5)
	assert.Error(t, err)

	backend.failRecent = nil
	msgs, err := l.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 2, backend.recentCalls)
}

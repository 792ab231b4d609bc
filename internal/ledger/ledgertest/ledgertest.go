// Package ledgertest is a conformance suite every ledger backend runs.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

// Factory returns a fresh, empty ledger. The suite closes it.
type Factory func(t *testing.T) ledger.Ledger

// Run executes the conformance suite against ledgers produced by newLedger.
func Run(t *testing.T, newLedger Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, l ledger.Ledger)
	}{
		{"EmptyLedger", testEmpty},
		{"AppendReturnsStoredRecord", testAppend},
		{"RecentIsOldestFirstAndBounded", testRecentBounded},
		{"RecentLimitLargerThanLedger", testRecentLarger},
		{"NonPositiveLimitUsesDefault", testDefaultLimit},
		{"TimestampsStrictlyIncrease", testTimestamps},
		{"ConcurrentAppends", testConcurrent},
		{"RecentReturnsCopy", testRecentCopy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			t.Cleanup(func() { _ = l.Close() })
			tt.fn(t, l)
		})
	}
}

func appendN(t *testing.T, l ledger.Ledger, n int) []domain.ChatMessage {
	t.Helper()
	out := make([]domain.ChatMessage, 0, n)
	for i := 1; i <= n; i++ {
		msg, err := l.Append(context.Background(), "alice", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func contents(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func testEmpty(t *testing.T, l ledger.Ledger) {
	msgs, err := l.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testAppend(t *testing.T, l ledger.Ledger) {
	msg, err := l.Append(context.Background(), "alice", "hi")
	require.NoError(t, err)

	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())

	msgs, err := l.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Username)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.True(t, msg.Timestamp.Equal(msgs[0].Timestamp), "stored %s, read %s", msg.Timestamp, msgs[0].Timestamp)
}

func testRecentBounded(t *testing.T, l ledger.Ledger) {
	appendN(t, l, 5)

	msgs, err := l.Recent(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 3", "message 4", "message 5"}, contents(msgs))
}

func testRecentLarger(t *testing.T, l ledger.Ledger) {
	appendN(t, l, 2)

	msgs, err := l.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 1", "message 2"}, contents(msgs))
}

func testDefaultLimit(t *testing.T, l ledger.Ledger) {
	appendN(t, l, ledger.DefaultLimit+2)

	msgs, err := l.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, msgs, ledger.DefaultLimit)
	assert.Equal(t, "message 3", msgs[0].Content)
	assert.Equal(t, fmt.Sprintf("message %d", ledger.DefaultLimit+2), msgs[len(msgs)-1].Content)
}

func testTimestamps(t *testing.T, l ledger.Ledger) {
	appended := appendN(t, l, 20)
	for i := 1; i < len(appended); i++ {
		assert.True(t, appended[i].Timestamp.After(appended[i-1].Timestamp),
			"timestamp %d (%s) not after %d (%s)", i, appended[i].Timestamp, i-1, appended[i-1].Timestamp)
	}

	msgs, err := l.Recent(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, contents(appended), contents(msgs))
}

func testConcurrent(t *testing.T, l ledger.Ledger) {
	const writers, each = 8, 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := l.Append(context.Background(), fmt.Sprintf("user-%d", w), fmt.Sprintf("%d-%d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	msgs, err := l.Recent(context.Background(), writers*each)
	require.NoError(t, err)
	require.Len(t, msgs, writers*each)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp))
	}
}

func testRecentCopy(t *testing.T, l ledger.Ledger) {
	appendN(t, l, 2)

	first, err := l.Recent(context.Background(), 2)
	require.NoError(t, err)
	first[0].Content = "mutated"

	second, err := l.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "message 1", second[0].Content)
}

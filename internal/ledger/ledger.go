// Package ledger defines the append-only message ledger and the helpers its
// backends share.
package ledger

import (
	"context"
	"fmt"

	"github.com/nfrund/relay/internal/domain"
)

// DefaultLimit is the number of messages Recent returns when the caller asks
// for a non-positive limit. It is also the most the gateway will serve.
const DefaultLimit = 50

// Ledger is a durable append-only store of chat messages.
type Ledger interface {
	// Append stamps the message with the server time, persists it and returns
	// the stored record. Failures wrap domain.ErrPersistenceUnavailable.
	Append(ctx context.Context, username, content string) (domain.ChatMessage, error)

	// Recent returns up to limit of the most recent messages, oldest first.
	// An empty ledger yields an empty slice and no error.
	Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error)

	Close() error
}

// NormalizeLimit maps non-positive limits to DefaultLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// Unavailable wraps a backend failure so callers can match it with
// domain.ErrPersistenceUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistenceUnavailable, err)
}

// Reverse flips a newest-first page into oldest-first order in place.
func Reverse(messages []domain.ChatMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

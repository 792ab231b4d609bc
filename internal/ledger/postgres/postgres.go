// Package postgres stores the ledger in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

const (
	insertMessage  = `INSERT INTO chat_messages (username, content, created_at) VALUES ($1, $2, $3) RETURNING id`
	recentMessages = `SELECT id, username, content, created_at FROM (SELECT id, username, content, created_at FROM chat_messages ORDER BY id DESC LIMIT $1) recent ORDER BY id ASC`
	latestStamp    = `SELECT MAX(created_at) FROM chat_messages`
)

// Ledger is a PostgreSQL-backed ledger.
type Ledger struct {
	db    *sql.DB
	clock *ledger.Clock
	mu    sync.Mutex
}

var _ ledger.Ledger = (*Ledger)(nil)

// Open runs migrations against databaseURL and connects to it.
func Open(ctx context.Context, databaseURL string, now func() time.Time) (*Ledger, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	l := New(db, now)
	if err := l.resumeClock(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an open database whose schema is already migrated.
func New(db *sql.DB, now func() time.Time) *Ledger {
	return &Ledger{db: db, clock: ledger.NewClock(now)}
}

func (l *Ledger) resumeClock(ctx context.Context) error {
	var latest sql.NullTime
	if err := l.db.QueryRowContext(ctx, latestStamp).Scan(&latest); err != nil {
		return fmt.Errorf("read latest timestamp: %w", err)
	}
	if latest.Valid {
		l.clock.Observe(latest.Time)
	}
	return nil
}

// Append implements ledger.Ledger.
func (l *Ledger) Append(ctx context.Context, username, content string) (domain.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := l.clock.Stamp()
	var id int64
	if err := l.db.QueryRowContext(ctx, insertMessage, username, content, stamp).Scan(&id); err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}
	return domain.ChatMessage{Seq: id, Username: username, Content: content, Timestamp: stamp}, nil
}

// Recent implements ledger.Ledger.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	rows, err := l.db.QueryContext(ctx, recentMessages, ledger.NormalizeLimit(limit))
	if err != nil {
		return nil, ledger.Unavailable("recent messages", err)
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.Seq, &msg.Username, &msg.Content, &msg.Timestamp); err != nil {
			return nil, ledger.Unavailable("scan message", err)
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Unavailable("recent messages", err)
	}
	return messages, nil
}

// Close implements ledger.Ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

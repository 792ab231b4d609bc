// Package sqlite stores the ledger in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

const (
	insertMessage = `INSERT INTO chat_messages (username, content, created_at) VALUES (?, ?, ?)`
	recentMessages = `SELECT id, username, content, created_at FROM (
		SELECT id, username, content, created_at FROM chat_messages ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`
	latestStamp = `SELECT COALESCE(MAX(created_at), 0) FROM chat_messages`
)

// Ledger is a SQLite-backed ledger.
type Ledger struct {
	db    *sql.DB
	clock *ledger.Clock
	// mu keeps stamp order and insert order identical.
	mu sync.Mutex
}

var _ ledger.Ledger = (*Ledger)(nil)

// Open migrates and opens the database file at path.
func Open(ctx context.Context, path string, now func() time.Time) (*Ledger, error) {
	if err := Migrate(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	l := &Ledger{db: db, clock: ledger.NewClock(now)}

	var latest int64
	if err := db.QueryRowContext(ctx, latestStamp).Scan(&latest); err != nil {
		db.Close()
		return nil, fmt.Errorf("read latest timestamp: %w", err)
	}
	if latest > 0 {
		l.clock.Observe(time.UnixMilli(latest))
	}
	return l, nil
}

// Append implements ledger.Ledger.
func (l *Ledger) Append(ctx context.Context, username, content string) (domain.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := l.clock.Stamp()
	res, err := l.db.ExecContext(ctx, insertMessage, username, content, stamp.UnixMilli())
	if err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
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
		var (
			msg     domain.ChatMessage
			created int64
		)
		if err := rows.Scan(&msg.Seq, &msg.Username, &msg.Content, &created); err != nil {
			return nil, ledger.Unavailable("scan message", err)
		}
		msg.Timestamp = time.UnixMilli(created).UTC()
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

// Package surreal stores the ledger in SurrealDB.
package surreal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

// DefaultTable is the table messages are written to.
const DefaultTable = "messages"

const (
	createMessage = `CREATE type::table($tb) CONTENT {
		username: $username,
		content: $content,
		timestamp: $timestamp
	}`
	recentMessages = `SELECT username, content, timestamp FROM type::table($tb) ORDER BY timestamp DESC LIMIT $limit`
	latestStamp    = `SELECT timestamp FROM type::table($tb) ORDER BY timestamp DESC LIMIT 1`
)

// Config holds SurrealDB connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	Table     string
}

// record is the stored shape. Timestamps are unix milliseconds so ordering
// is numeric.
type record struct {
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func (r record) message() domain.ChatMessage {
	return domain.ChatMessage{
		Seq:       r.Timestamp,
		Username:  r.Username,
		Content:   r.Content,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
	}
}

// Ledger is a SurrealDB-backed ledger.
type Ledger struct {
	db    *surrealdb.DB
	table string
	clock *ledger.Clock
	mu    sync.Mutex
}

var _ ledger.Ledger = (*Ledger)(nil)

// Connect opens a SurrealDB connection, signs in and selects the namespace
// and database.
func Connect(ctx context.Context, cfg Config) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to surrealdb: %w", err)
	}

	if cfg.Username != "" {
		authData := &surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		}
		if _, err = db.SignIn(ctx, authData); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("sign in: %w", err)
		}
	}

	if err = db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("use namespace/db: %w", err)
	}

	slog.Info("Connected to SurrealDB", "namespace", cfg.Namespace, "database", cfg.Database)
	return db, nil
}

// Open connects using cfg and returns a ledger over cfg.Table.
func Open(ctx context.Context, cfg Config, now func() time.Time) (*Ledger, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l := New(db, cfg.Table, now)
	if err := l.resumeClock(ctx); err != nil {
		db.Close(ctx)
		return nil, err
	}
	return l, nil
}

// New wraps an established connection.
func New(db *surrealdb.DB, table string, now func() time.Time) *Ledger {
	if table == "" {
		table = DefaultTable
	}
	return &Ledger{db: db, table: table, clock: ledger.NewClock(now)}
}

func (l *Ledger) resumeClock(ctx context.Context) error {
	latest, err := query[record](ctx, l.db, latestStamp, map[string]any{"tb": l.table})
	if err != nil {
		return fmt.Errorf("read latest timestamp: %w", err)
	}
	if len(latest) > 0 {
		l.clock.Observe(time.UnixMilli(latest[0].Timestamp))
	}
	return nil
}

// Append implements ledger.Ledger.
func (l *Ledger) Append(ctx context.Context, username, content string) (domain.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := record{Username: username, Content: content, Timestamp: l.clock.Stamp().UnixMilli()}
	params := map[string]any{
		"tb":        l.table,
		"username":  rec.Username,
		"content":   rec.Content,
		"timestamp": rec.Timestamp,
	}
	if _, err := surrealdb.Query[any](ctx, l.db, createMessage, params); err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}
	return rec.message(), nil
}

// Recent implements ledger.Ledger.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	records, err := query[record](ctx, l.db, recentMessages, map[string]any{
		"tb":    l.table,
		"limit": ledger.NormalizeLimit(limit),
	})
	if err != nil {
		return nil, ledger.Unavailable("recent messages", err)
	}

	messages := make([]domain.ChatMessage, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.message())
	}
	ledger.Reverse(messages)
	return messages, nil
}

// Close implements ledger.Ledger.
func (l *Ledger) Close() error {
	return l.db.Close(context.Background())
}

// query runs a single statement and returns its rows.
func query[T any](ctx context.Context, db *surrealdb.DB, sql string, params map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, sql, params)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

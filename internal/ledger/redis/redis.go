// Package redis stores the ledger in a Redis stream.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "relay:messages"

// Ledger appends messages to a Redis stream with XADD and reads the tail with
// XREVRANGE.
type Ledger struct {
	client *redis.Client
	stream string
	clock  *ledger.Clock
	mu     sync.Mutex
}

var _ ledger.Ledger = (*Ledger)(nil)

// Open parses redisURL, checks connectivity and returns a ledger over stream.
func Open(ctx context.Context, redisURL, stream string, now func() time.Time) (*Ledger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	l := New(client, stream, now)
	if err := l.resumeClock(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an existing client.
func New(client *redis.Client, stream string, now func() time.Time) *Ledger {
	if stream == "" {
		stream = DefaultStream
	}
	return &Ledger{client: client, stream: stream, clock: ledger.NewClock(now)}
}

func (l *Ledger) resumeClock(ctx context.Context) error {
	latest, err := l.client.XRevRangeN(ctx, l.stream, "+", "-", 1).Result()
	if err != nil {
		return fmt.Errorf("read latest entry: %w", err)
	}
	if len(latest) == 1 {
		msg, err := decode(latest[0])
		if err != nil {
			return err
		}
		l.clock.Observe(msg.Timestamp)
	}
	return nil
}

// Append implements ledger.Ledger.
func (l *Ledger) Append(ctx context.Context, username, content string) (domain.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := l.clock.Stamp()
	_, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"username":  username,
			"content":   content,
			"timestamp": stamp.UnixMilli(),
		},
	}).Result()
	if err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}
	return domain.ChatMessage{Seq: stamp.UnixMilli(), Username: username, Content: content, Timestamp: stamp}, nil
}

// Recent implements ledger.Ledger.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	entries, err := l.client.XRevRangeN(ctx, l.stream, "+", "-", int64(ledger.NormalizeLimit(limit))).Result()
	if err != nil {
		return nil, ledger.Unavailable("recent messages", err)
	}

	messages := make([]domain.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		msg, err := decode(entry)
		if err != nil {
			return nil, ledger.Unavailable("recent messages", err)
		}
		messages = append(messages, msg)
	}
	ledger.Reverse(messages)
	return messages, nil
}

// Close implements ledger.Ledger.
func (l *Ledger) Close() error {
	return l.client.Close()
}

func decode(entry redis.XMessage) (domain.ChatMessage, error) {
	username, _ := entry.Values["username"].(string)
	content, _ := entry.Values["content"].(string)
	raw, _ := entry.Values["timestamp"].(string)

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("decode entry %s: bad timestamp %q", entry.ID, raw)
	}
	return domain.ChatMessage{
		Seq:       ms,
		Username:  username,
		Content:   content,
		Timestamp: time.UnixMilli(ms).UTC(),
	}, nil
}

// Package file stores the ledger as an append-only JSON-lines file.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
)

// line is one persisted record.
type line struct {
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Ledger appends one JSON line per message and serves reads from an in-memory
// copy rebuilt from the file on open.
type Ledger struct {
	mu       sync.RWMutex
	file     afero.File
	size     int64 // end of the last complete line
	broken   error // set when a failed append could not be rolled back
	messages []domain.ChatMessage
	clock    *ledger.Clock
}

var _ ledger.Ledger = (*Ledger)(nil)

// Open replays path on fs and keeps it open for appends.
func Open(fs afero.Fs, path string, now func() time.Time) (*Ledger, error) {
	l := &Ledger{clock: ledger.NewClock(now)}

	existing, err := fs.Open(path)
	switch {
	case err == nil:
		err = l.replay(existing)
		existing.Close()
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("open ledger file %s: %w", path, err)
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file %s: %w", path, err)
	}
	l.file = f

	// Drop a torn tail left by a crash mid-append.
	if err := l.rollback(); err != nil {
		f.Close()
		return nil, fmt.Errorf("trim ledger file %s: %w", path, err)
	}
	return l, nil
}

// replay loads every newline-terminated record. An unterminated final line
// is a torn append and is skipped; a bad line anywhere else fails the replay.
func (l *Ledger) replay(r io.Reader) error {
	reader := bufio.NewReader(r)

	for n := 1; ; n++ {
		raw, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay ledger: %w", err)
		}

		if len(bytes.TrimSpace(raw)) > 0 {
			var rec line
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("replay ledger line %d: %w", n, err)
			}
			msg := domain.ChatMessage{
				Seq:       int64(len(l.messages) + 1),
				Username:  rec.Username,
				Content:   rec.Content,
				Timestamp: time.UnixMilli(rec.Timestamp).UTC(),
			}
			l.messages = append(l.messages, msg)
			l.clock.Observe(msg.Timestamp)
		}
		l.size += int64(len(raw))
	}
}

// rollback cuts the file back to the last complete line and moves the write
// offset there.
func (l *Ledger) rollback() error {
	if err := l.file.Truncate(l.size); err != nil {
		return err
	}
	_, err := l.file.Seek(l.size, io.SeekStart)
	return err
}

// Append implements ledger.Ledger. The line is synced before the message is
// visible to readers.
func (l *Ledger) Append(ctx context.Context, username, content string) (domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.broken != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", l.broken)
	}

	stamp := l.clock.Stamp()
	data, err := json.Marshal(line{Username: username, Content: content, Timestamp: stamp.UnixMilli()})
	if err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}
	data = append(data, '\n')

	if err := l.write(data); err != nil {
		return domain.ChatMessage{}, ledger.Unavailable("append message", err)
	}

	msg := domain.ChatMessage{
		Seq:       int64(len(l.messages) + 1),
		Username:  username,
		Content:   content,
		Timestamp: stamp,
	}
	l.messages = append(l.messages, msg)
	return msg, nil
}

// write appends data and syncs it. On failure the file is rolled back so a
// failed append leaves no bytes behind.
func (l *Ledger) write(data []byte) error {
	_, err := l.file.Write(data)
	if err == nil {
		err = l.file.Sync()
	}
	if err != nil {
		if rbErr := l.rollback(); rbErr != nil {
			l.broken = fmt.Errorf("roll back failed append: %w", rbErr)
			return errors.Join(err, l.broken)
		}
		return err
	}
	l.size += int64(len(data))
	return nil
}

// Recent implements ledger.Ledger.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, ledger.Unavailable("recent messages", err)
	}
	limit = ledger.NormalizeLimit(limit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := max(len(l.messages)-limit, 0)
	out := make([]domain.ChatMessage, len(l.messages)-start)
	copy(out, l.messages[start:])
	return out, nil
}

// Close implements ledger.Ledger.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

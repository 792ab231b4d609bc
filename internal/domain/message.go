package domain

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the wire format for message timestamps: RFC3339 in UTC
// with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ChatMessage is a single message as stored in the ledger and delivered to
// clients. Seq is the ledger's insertion key and is never sent to clients.
type ChatMessage struct {
	Seq       int64     `json:"-"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON renders the timestamp with a fixed millisecond layout so every
// client sees the same representation regardless of backend precision.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Username  string `json:"username"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}{
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC().Format(TimestampLayout),
	})
}

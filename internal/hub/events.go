package hub

import "github.com/nfrund/relay/internal/pubsub"

// Close reasons reported on ConnectionClosed.
const (
	ReasonClient       = "client"
	ReasonSlowConsumer = "slow_consumer"
	ReasonShutdown     = "shutdown"
)

// ConnectionEvent describes a connection entering or leaving the registry.
type ConnectionEvent struct {
	ConnID   string `json:"conn_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
	Active   int    `json:"active"`
}

// RejectedEvent describes a handshake that failed authentication.
type RejectedEvent struct {
	Code string `json:"code"`
}

// BroadcastEvent describes one fan-out.
type BroadcastEvent struct {
	Username   string `json:"username"`
	Recipients int    `json:"recipients"`
	Persisted  bool   `json:"persisted"`
}

// PersistenceFailedEvent describes a ledger append failure.
type PersistenceFailedEvent struct {
	Username string `json:"username"`
	Error    string `json:"error"`
}

// Lifecycle events published by the hub.
var (
	ConnectionOpened   = pubsub.NewEvent[ConnectionEvent]("hub.connection.opened")
	ConnectionClosed   = pubsub.NewEvent[ConnectionEvent]("hub.connection.closed")
	ConnectionRejected = pubsub.NewEvent[RejectedEvent]("hub.connection.rejected")
	MessageBroadcast   = pubsub.NewEvent[BroadcastEvent]("hub.message.broadcast")
	PersistenceFailed  = pubsub.NewEvent[PersistenceFailedEvent]("hub.persistence.failed")
)

// Package hub owns the live connection registry and the single dispatcher
// that persists inbound messages and fans them out in order.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
	"github.com/nfrund/relay/internal/pubsub"
)

// SessionParser verifies the credential presented at connect time.
type SessionParser interface {
	ParseSession(token string) (domain.Session, error)
}

// Normalizer cleans inbound content or rejects it as malformed.
type Normalizer interface {
	Normalize(raw string) (string, error)
}

// Config tunes queue sizes.
type Config struct {
	// SendBuffer is the per-connection outbound queue length. A connection
	// whose queue is full at broadcast time is disconnected.
	SendBuffer int
	// QueueSize is the dispatcher's inbound queue length.
	QueueSize int
	Now       func() time.Time
}

// ConnInfo is a read-only view of a registered connection.
type ConnInfo struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connected_at"`
}

type submission struct {
	conn    *Conn
	content string
	result  chan submitResult
}

type submitResult struct {
	msg domain.ChatMessage
	err error
}

// Hub is the broadcast hub.
type Hub struct {
	sessions   SessionParser
	ledger     ledger.Ledger
	normalizer Normalizer
	bus        pubsub.Publisher
	logger     *slog.Logger

	registry   *registry
	inbound    chan submission
	done       chan struct{}
	started    atomic.Bool
	clock      *ledger.Clock
	now        func() time.Time
	sendBuffer int
}

// New creates a hub. bus may be nil.
func New(sessions SessionParser, l ledger.Ledger, normalizer Normalizer, bus pubsub.Publisher, logger *slog.Logger, cfg Config) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hub{
		sessions:   sessions,
		ledger:     l,
		normalizer: normalizer,
		bus:        bus,
		logger:     logger.With("component", "hub"),
		registry:   newRegistry(),
		inbound:    make(chan submission, cfg.QueueSize),
		done:       make(chan struct{}),
		clock:      ledger.NewClock(cfg.Now),
		now:        cfg.Now,
		sendBuffer: cfg.SendBuffer,
	}
}

// Connect authenticates token and registers a new Active connection. On
// failure the verification error is returned and nothing is registered.
func (h *Hub) Connect(ctx context.Context, token string) (*Conn, error) {
	session, err := h.sessions.ParseSession(token)
	if err != nil {
		h.logger.InfoContext(ctx, "Connection rejected", "code", domain.ErrorCode(err), "error", err)
		h.publish(ctx, func(ctx context.Context) error {
			return pubsub.Publish(ctx, h.bus, ConnectionRejected, "", RejectedEvent{Code: domain.ErrorCode(err)})
		})
		return nil, err
	}

	conn := newConn(uuid.NewString(), session, h.sendBuffer, h.now().UTC())
	if !h.registry.add(conn) {
		return nil, domain.ErrHubStopped
	}

	active := h.registry.len()
	h.logger.InfoContext(ctx, "Connection registered",
		"conn_id", conn.ID, "username", conn.Identity.Username, "active", active)
	h.publish(ctx, func(ctx context.Context) error {
		return pubsub.Publish(ctx, h.bus, ConnectionOpened, conn.Identity.ID, ConnectionEvent{
			ConnID:   conn.ID,
			UserID:   conn.Identity.ID,
			Username: conn.Identity.Username,
			Active:   active,
		})
	})
	return conn, nil
}

// Disconnect removes conn from the registry and closes its queue. It is safe
// to call more than once and never waits for in-flight broadcasts.
func (h *Hub) Disconnect(conn *Conn) {
	h.disconnect(context.Background(), conn, ReasonClient)
}

func (h *Hub) disconnect(ctx context.Context, conn *Conn, reason string) {
	if conn == nil {
		return
	}
	h.registry.remove(conn.ID)
	if !conn.close() {
		return
	}

	active := h.registry.len()
	h.logger.InfoContext(ctx, "Connection closed",
		"conn_id", conn.ID, "username", conn.Identity.Username, "reason", reason, "active", active)
	h.publish(ctx, func(ctx context.Context) error {
		return pubsub.Publish(ctx, h.bus, ConnectionClosed, conn.Identity.ID, ConnectionEvent{
			ConnID:   conn.ID,
			UserID:   conn.Identity.ID,
			Username: conn.Identity.Username,
			Reason:   reason,
			Active:   active,
		})
	})
}

// Submit normalizes content and hands it to the dispatcher, waiting for the
// broadcast to complete. When persistence fails the message is still
// broadcast and returned together with an error wrapping
// domain.ErrPersistenceUnavailable.
func (h *Hub) Submit(ctx context.Context, conn *Conn, content string) (domain.ChatMessage, error) {
	if conn == nil || conn.Closed() {
		return domain.ChatMessage{}, domain.ErrConnectionClosed
	}

	text, err := h.normalizer.Normalize(content)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	sub := submission{conn: conn, content: text, result: make(chan submitResult, 1)}
	select {
	case h.inbound <- sub:
	case <-h.done:
		return domain.ChatMessage{}, domain.ErrHubStopped
	case <-ctx.Done():
		return domain.ChatMessage{}, ctx.Err()
	}

	select {
	case res := <-sub.result:
		return res.msg, res.err
	case <-h.done:
		select {
		case res := <-sub.result:
			return res.msg, res.err
		default:
			return domain.ChatMessage{}, domain.ErrHubStopped
		}
	case <-ctx.Done():
		return domain.ChatMessage{}, ctx.Err()
	}
}

// Run is the dispatcher loop. It processes submissions one at a time until
// ctx is canceled, then disconnects every connection. It may be called once.
func (h *Hub) Run(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return errors.New("hub is already running")
	}
	defer close(h.done)
	defer h.shutdown(ctx)

	h.logger.InfoContext(ctx, "Hub dispatcher started")
	for {
		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "Hub dispatcher stopping")
			return nil
		case sub := <-h.inbound:
			sub.result <- h.process(ctx, sub)
		}
	}
}

func (h *Hub) process(ctx context.Context, sub submission) submitResult {
	username := sub.conn.Identity.Username

	msg, err := h.ledger.Append(ctx, username, sub.content)
	persisted := err == nil
	if persisted {
		h.clock.Observe(msg.Timestamp)
	} else {
		if !errors.Is(err, domain.ErrPersistenceUnavailable) {
			err = ledger.Unavailable("append message", err)
		}
		h.logger.ErrorContext(ctx, "Failed to persist message, broadcasting anyway",
			"conn_id", sub.conn.ID, "username", username, "error", err)
		h.publish(ctx, func(ctx context.Context) error {
			return pubsub.Publish(ctx, h.bus, PersistenceFailed, sub.conn.Identity.ID, PersistenceFailedEvent{
				Username: username,
				Error:    err.Error(),
			})
		})
		msg = domain.ChatMessage{Username: username, Content: sub.content, Timestamp: h.clock.Stamp()}
	}

	recipients := h.broadcast(ctx, msg)
	h.publish(ctx, func(ctx context.Context) error {
		return pubsub.Publish(ctx, h.bus, MessageBroadcast, sub.conn.Identity.ID, BroadcastEvent{
			Username:   username,
			Recipients: recipients,
			Persisted:  persisted,
		})
	})
	return submitResult{msg: msg, err: err}
}

// broadcast delivers msg to every registered connection and returns how many
// received it. Connections with a full queue are disconnected.
func (h *Hub) broadcast(ctx context.Context, msg domain.ChatMessage) int {
	conns := h.registry.snapshot()
	h.logger.DebugContext(ctx, "Broadcasting message", "recipient_count", len(conns))

	recipients := 0
	for _, conn := range conns {
		switch conn.deliver(msg) {
		case delivered:
			recipients++
		case queueFull:
			h.logger.WarnContext(ctx, "Disconnecting slow consumer", "conn_id", conn.ID, "username", conn.Identity.Username)
			h.disconnect(ctx, conn, ReasonSlowConsumer)
		case connClosed:
		}
	}
	return recipients
}

func (h *Hub) shutdown(ctx context.Context) {
	// ctx is already canceled here; events still need a live context.
	ctx = context.WithoutCancel(ctx)
	for _, conn := range h.registry.closeAll() {
		h.disconnect(ctx, conn, ReasonShutdown)
	}
}

// Count returns the number of Active connections.
func (h *Hub) Count() int {
	return h.registry.len()
}

// Snapshot lists the Active connections.
func (h *Hub) Snapshot() []ConnInfo {
	conns := h.registry.snapshot()
	out := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnInfo{ID: c.ID, Username: c.Identity.Username, ConnectedAt: c.ConnectedAt})
	}
	return out
}

func (h *Hub) publish(ctx context.Context, fn func(ctx context.Context) error) {
	if h.bus == nil {
		return
	}
	if err := fn(ctx); err != nil {
		h.logger.DebugContext(ctx, "Failed to publish hub event", "error", err)
	}
}

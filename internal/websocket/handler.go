// Package websocket adapts the broadcast hub to websocket connections.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/hub"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 64 * 1024
	directQueueSize     = 16
)

// Hub is the part of the broadcast hub the transport needs.
type Hub interface {
	Connect(ctx context.Context, token string) (*hub.Conn, error)
	Disconnect(conn *hub.Conn)
	Submit(ctx context.Context, conn *hub.Conn, content string) (domain.ChatMessage, error)
}

// Config tunes per-connection transport behavior.
type Config struct {
	// OriginPatterns lists allowed cross-origin hosts. "*" allows any origin.
	OriginPatterns []string
	// MessageRate is the sustained inbound messages per second per connection.
	// Zero disables rate limiting.
	MessageRate  float64
	MessageBurst int
	// PingInterval is the keepalive period. Zero disables pings.
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

// Handler upgrades authenticated requests and pumps frames between the
// socket and the hub.
type Handler struct {
	hub    Hub
	cfg    Config
	logger *slog.Logger
}

// NewHandler creates a new websocket handler.
func NewHandler(h Hub, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	return &Handler{hub: h, cfg: cfg, logger: logger.With("component", "websocket")}
}

// Serve authenticates the request and, on success, upgrades it. Credential
// failures are answered with a plain HTTP error before any upgrade.
func (h *Handler) Serve(c echo.Context) error {
	r := c.Request()

	conn, err := h.hub.Connect(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		status := auth.StatusFor(err)
		if errors.Is(err, domain.ErrHubStopped) {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, echo.Map{"code": domain.ErrorCode(err), "message": http.StatusText(status)})
	}

	ws, err := websocket.Accept(c.Response(), r, h.acceptOptions())
	if err != nil {
		// Accept has already written the failure response.
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", "conn_id", conn.ID, "error", err)
		h.hub.Disconnect(conn)
		return nil
	}
	ws.SetReadLimit(h.cfg.ReadLimit)

	h.logger.InfoContext(r.Context(), "WebSocket connected",
		"conn_id", conn.ID, "username", conn.Identity.Username, "remote_addr", r.RemoteAddr)

	h.serve(r.Context(), ws, conn)
	return nil
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, p := range h.cfg.OriginPatterns {
		if p == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = h.cfg.OriginPatterns
	return opts
}

func (h *Handler) serve(parent context.Context, ws *websocket.Conn, conn *hub.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	direct := make(chan Message, directQueueSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writePump(ctx, ws, conn, direct)
	}()

	h.readPump(ctx, ws, conn, direct)

	h.hub.Disconnect(conn)
	cancel()
	<-writerDone
	ws.Close(websocket.StatusNormalClosure, "")

	h.logger.Info("WebSocket disconnected", "conn_id", conn.ID, "username", conn.Identity.Username)
}

// readPump reads client frames and submits them to the hub until the socket
// or the connection closes.
func (h *Handler) readPump(ctx context.Context, ws *websocket.Conn, conn *hub.Conn, direct chan<- Message) {
	var limiter *rate.Limiter
	if h.cfg.MessageRate > 0 {
		burst := h.cfg.MessageBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.cfg.MessageRate), burst)
	}

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				h.logger.Debug("WebSocket read error", "conn_id", conn.ID, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			h.reply(direct, conn, NewError(domain.ErrMalformedInboundMessage))
			continue
		}
		if limiter != nil && !limiter.Allow() {
			h.reply(direct, conn, newErrorCode(domain.CodeRateLimited))
			continue
		}

		content, err := decodeInbound(data)
		if err == nil {
			_, err = h.hub.Submit(ctx, conn, content)
		}
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrMalformedInboundMessage), errors.Is(err, domain.ErrPersistenceUnavailable):
			h.reply(direct, conn, NewError(err))
		default:
			h.logger.Debug("Submit ended connection", "conn_id", conn.ID, "error", err)
			return
		}
	}
}

// reply queues an event for this connection only. It never blocks the reader.
func (h *Handler) reply(direct chan<- Message, conn *hub.Conn, msg Message) {
	select {
	case direct <- msg:
	default:
		h.logger.Warn("Dropping reply to busy connection", "conn_id", conn.ID, "type", msg.Type)
	}
}

// writePump is the only writer on ws. It drains the hub queue and direct
// replies, sends keepalive pings, and closes the socket when the session
// credential expires.
func (h *Handler) writePump(ctx context.Context, ws *websocket.Conn, conn *hub.Conn, direct <-chan Message) {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	var expired <-chan time.Time
	if !conn.ExpiresAt.IsZero() {
		timer := time.NewTimer(time.Until(conn.ExpiresAt))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-conn.Messages():
			if !ok {
				ws.Close(websocket.StatusGoingAway, "connection closed by server")
				return
			}
			if err := h.write(ctx, ws, NewChatMessage(msg)); err != nil {
				h.logger.Debug("WebSocket write failed", "conn_id", conn.ID, "error", err)
				return
			}

		case msg := <-direct:
			if err := h.write(ctx, ws, msg); err != nil {
				h.logger.Debug("WebSocket write failed", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ping:
			pingCtx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("WebSocket ping failed", "conn_id", conn.ID, "error", err)
				return
			}

		case <-expired:
			h.logger.Info("Session expired, closing connection", "conn_id", conn.ID, "username", conn.Identity.Username)
			h.hub.Disconnect(conn)
			_ = h.write(ctx, ws, NewMessage(TypeSessionExpired, nil))
			ws.Close(websocket.StatusPolicyViolation, "session expired")
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, msg)
}

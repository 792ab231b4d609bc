package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/ledger"
	"github.com/nfrund/relay/internal/middleware"
)

// HistoryReader reads the most recent messages.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error)
}

// MessageHandler serves message history.
type MessageHandler struct {
	history HistoryReader
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(history HistoryReader) *MessageHandler {
	return &MessageHandler{history: history}
}

// History handles GET /messages. It returns at most ledger.DefaultLimit
// messages, oldest first. Route it behind middleware.Auth.
func (h *MessageHandler) History(c echo.Context) error {
	logger := middleware.FromContext(c.Request().Context())

	var req HistoryRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeBadRequest, "limit must be an integer")
	}
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeBadRequest, "limit must not be negative")
	}

	limit := req.Limit
	if limit <= 0 || limit > ledger.DefaultLimit {
		limit = ledger.DefaultLimit
	}

	messages, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		logger.Error("Failed to read message history", "error", err)
		return errorJSON(c, http.StatusServiceUnavailable, domain.ErrorCode(err), "message history is unavailable")
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return c.JSON(http.StatusOK, messages)
}

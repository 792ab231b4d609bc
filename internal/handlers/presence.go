package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/presence"
)

// PresenceLister lists online users.
type PresenceLister interface {
	Online() []presence.Presence
}

// PresenceHandler serves the online user list.
type PresenceHandler struct {
	presence PresenceLister
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(p PresenceLister) *PresenceHandler {
	return &PresenceHandler{presence: p}
}

// GetPresence handles GET /presence.
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"users": h.presence.Online()})
}

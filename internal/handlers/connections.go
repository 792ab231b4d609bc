package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/hub"
)

// ConnectionLister lists Active hub connections.
type ConnectionLister interface {
	Snapshot() []hub.ConnInfo
}

// ConnectionHandler reports who is connected.
type ConnectionHandler struct {
	hub ConnectionLister
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(h ConnectionLister) *ConnectionHandler {
	return &ConnectionHandler{hub: h}
}

// List handles GET /connections.
func (h *ConnectionHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.hub.Snapshot())
}

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health handles GET /health.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

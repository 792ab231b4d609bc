package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/domain"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

// errorJSON writes an ErrorResponse with the given status.
func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Code: code, Message: message})
}

package handlers

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// LoginRequest is the body of POST /auth/google.
type LoginRequest struct {
	Token string `json:"token" validate:"required"`
}

// HistoryRequest holds the query parameters of GET /messages.
type HistoryRequest struct {
	Limit int `query:"limit" validate:"gte=0"`
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/middleware"
)

// Code reported when the login body fails validation.
const codeBadRequest = "bad_request"

// LoginService exchanges an external provider token for a session credential.
type LoginService interface {
	Login(ctx context.Context, providerToken string) (string, domain.Identity, error)
}

// LoginRecorder records login outcomes.
type LoginRecorder interface {
	RecordLogin(result string)
}

// AuthHandler handles authentication requests.
type AuthHandler struct {
	service  LoginService
	recorder LoginRecorder
}

// NewAuthHandler creates a new AuthHandler. recorder may be nil.
func NewAuthHandler(service LoginService, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{service: service, recorder: recorder}
}

// Login handles POST /auth/google.
func (h *AuthHandler) Login(c echo.Context) error {
	logger := middleware.FromContext(c.Request().Context())

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeBadRequest, "request body must be JSON")
	}
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeBadRequest, "token is required")
	}

	token, identity, err := h.service.Login(c.Request().Context(), req.Token)
	if err != nil {
		h.record(domain.ErrorCode(err))
		if errors.Is(err, domain.ErrExternalTokenInvalid) {
			logger.Info("Login rejected", "error", err)
			return errorJSON(c, http.StatusUnauthorized, domain.CodeExternalTokenInvalid, "Invalid Google token")
		}
		logger.Error("Login failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, domain.CodeInternal, "login failed")
	}

	h.record("success")
	return c.JSON(http.StatusOK, LoginResponse{Token: token, User: identity})
}

func (h *AuthHandler) record(result string) {
	if h.recorder != nil {
		h.recorder.RecordLogin(result)
	}
}

package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/domain"
)

// UserContextKey is the echo context key holding the authenticated identity.
const UserContextKey = "user"

// Auth rejects requests without a valid bearer credential before the handler
// runs: 401 when the credential is missing, 403 when it is invalid or expired.
func Auth(verifier auth.SessionVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := auth.Authorize(c.Request(), verifier)
			if err != nil {
				FromContext(c.Request().Context()).Info("Request not authorized",
					"path", c.Path(), "code", domain.ErrorCode(err))
				return c.JSON(auth.StatusFor(err), echo.Map{
					"code":    domain.ErrorCode(err),
					"message": err.Error(),
				})
			}

			c.Set(UserContextKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	identity, ok := c.Get(UserContextKey).(domain.Identity)
	return identity, ok
}

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nfrund/relay/internal/domain"
)

// SessionVerifier verifies a session credential.
type SessionVerifier interface {
	VerifySessionCredential(token string) (domain.Identity, error)
}

// TokenFromRequest returns the bearer credential from the Authorization
// header, falling back to the token query parameter used by browser
// websocket clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authorize verifies the request's bearer credential and returns the identity
// it carries.
func Authorize(r *http.Request, verifier SessionVerifier) (domain.Identity, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return domain.Identity{}, domain.ErrCredentialMissing
	}
	return verifier.VerifySessionCredential(token)
}

// StatusFor maps a credential verification error to its HTTP status: a
// missing credential is 401, an invalid or expired one is 403.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrCredentialInvalid), errors.Is(err, domain.ErrCredentialExpired):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrExternalTokenInvalid):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

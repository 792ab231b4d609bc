package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/nfrund/relay/internal/domain"
)

// IdentityProvider proves a user's identity from a token issued by an
// external provider.
type IdentityProvider interface {
	VerifyExternalIdentity(ctx context.Context, rawToken string) (domain.Identity, error)
}

// OIDCProvider verifies ID tokens against an OpenID Connect issuer.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	timeout  time.Duration
}

// NewGoogleProvider discovers the issuer's signing keys and returns a provider
// that accepts ID tokens minted for clientID. ctx must outlive the provider:
// go-oidc uses it for background key refreshes.
func NewGoogleProvider(ctx context.Context, issuer, clientID string, timeout time.Duration) (*OIDCProvider, error) {
	if clientID == "" {
		return nil, errors.New("client id is required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover identity provider %s: %w", issuer, err)
	}
	return NewOIDCProvider(provider.Verifier(&oidc.Config{ClientID: clientID}), timeout), nil
}

// NewOIDCProvider wraps an existing verifier.
func NewOIDCProvider(verifier *oidc.IDTokenVerifier, timeout time.Duration) *OIDCProvider {
	return &OIDCProvider{verifier: verifier, timeout: timeout}
}

type idTokenClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// VerifyExternalIdentity implements IdentityProvider.
func (p *OIDCProvider) VerifyExternalIdentity(ctx context.Context, rawToken string) (domain.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.Identity{}, fmt.Errorf("%w: token is empty", domain.ErrExternalTokenInvalid)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	token, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrExternalTokenInvalid, err)
	}
	if token.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: subject is empty", domain.ErrExternalTokenInvalid)
	}

	var claims idTokenClaims
	if err := token.Claims(&claims); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: decode claims: %v", domain.ErrExternalTokenInvalid, err)
	}

	username := claims.Name
	if username == "" {
		username = claims.Email
	}
	if username == "" {
		username = token.Subject
	}

	return domain.Identity{
		ID:       token.Subject,
		Username: username,
		Email:    claims.Email,
	}, nil
}

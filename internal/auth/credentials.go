package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nfrund/relay/internal/domain"
)

// SessionTTL is the fixed lifetime of a session credential.
const SessionTTL = time.Hour

// CredentialConfig configures session credential signing.
type CredentialConfig struct {
	Secret []byte
	Issuer string
	// TTL overrides SessionTTL; zero means SessionTTL.
	TTL time.Duration
	Now func() time.Time
}

// sessionClaims is the internal claims type used for JWT signing and parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Credentials issues and verifies self-contained session credentials. There is
// no server-side session table: expiry is the only invalidation path.
type Credentials struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentials validates cfg and returns a ready signer.
func NewCredentials(cfg CredentialConfig) (*Credentials, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("credential secret is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("credential issuer is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = SessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Credentials{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}, nil
}

// Issue signs a credential embedding the identity, valid for the configured TTL.
func (c *Credentials) Issue(identity domain.Identity) (string, domain.Identity, error) {
	if identity.ID == "" {
		return "", domain.Identity{}, errors.New("identity id is required")
	}
	// NumericDate keeps whole seconds; stamping on a second boundary keeps
	// exp exactly iat + TTL.
	now := c.now().UTC().Truncate(time.Second)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Username: identity.Username,
		Email:    identity.Email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", domain.Identity{}, fmt.Errorf("sign session credential: %w", err)
	}
	return token, identity, nil
}

// ParseSession verifies the credential and returns the embedded session.
func (c *Credentials) ParseSession(token string) (domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Session{}, domain.ErrCredentialMissing
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return domain.Session{}, mapJWTError(err)
	}
	if parsed.Subject == "" {
		return domain.Session{}, fmt.Errorf("%w: subject is empty", domain.ErrCredentialInvalid)
	}

	return domain.Session{
		Identity: domain.Identity{
			ID:       parsed.Subject,
			Username: parsed.Username,
			Email:    parsed.Email,
		},
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}, nil
}

// Verify verifies the credential and returns only the identity.
func (c *Credentials) Verify(token string) (domain.Identity, error) {
	session, err := c.ParseSession(token)
	if err != nil {
		return domain.Identity{}, err
	}
	return session.Identity, nil
}

// mapJWTError translates jwt library errors to domain errors. Signature
// failures are checked before expiry, so a forged expired token is invalid.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domain.ErrCredentialInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", domain.ErrCredentialExpired, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrCredentialInvalid, err)
	}
}

package auth

import (
	"context"
	"log/slog"

	"github.com/nfrund/relay/internal/domain"
)

// Service is the credential service: it proves identities through the
// external provider and issues and verifies session credentials.
type Service struct {
	provider    IdentityProvider
	credentials *Credentials
	logger      *slog.Logger
}

// NewService creates a credential service. provider may be nil for tools that
// only mint or verify session credentials.
func NewService(provider IdentityProvider, credentials *Credentials, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:    provider,
		credentials: credentials,
		logger:      logger.With("component", "auth"),
	}
}

// VerifyExternalIdentity delegates to the configured identity provider.
func (s *Service) VerifyExternalIdentity(ctx context.Context, rawToken string) (domain.Identity, error) {
	if s.provider == nil {
		return domain.Identity{}, domain.ErrExternalTokenInvalid
	}
	return s.provider.VerifyExternalIdentity(ctx, rawToken)
}

// IssueSessionCredential signs a one hour credential for identity.
func (s *Service) IssueSessionCredential(identity domain.Identity) (string, domain.Identity, error) {
	return s.credentials.Issue(identity)
}

// VerifySessionCredential checks a credential without contacting the provider.
func (s *Service) VerifySessionCredential(token string) (domain.Identity, error) {
	return s.credentials.Verify(token)
}

// ParseSession is VerifySessionCredential plus the credential's expiry.
func (s *Service) ParseSession(token string) (domain.Session, error) {
	return s.credentials.ParseSession(token)
}

// Login exchanges an external provider token for a session credential.
func (s *Service) Login(ctx context.Context, providerToken string) (string, domain.Identity, error) {
	identity, err := s.VerifyExternalIdentity(ctx, providerToken)
	if err != nil {
		s.logger.WarnContext(ctx, "External identity verification failed", "error", err)
		return "", domain.Identity{}, err
	}

	token, issued, err := s.IssueSessionCredential(identity)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to issue session credential", "user_id", identity.ID, "error", err)
		return "", domain.Identity{}, err
	}

	s.logger.InfoContext(ctx, "User logged in", "user_id", issued.ID, "username", issued.Username)
	return token, issued, nil
}

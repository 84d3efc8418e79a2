package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Token type hints (RFC 7009).
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// RevocationService revokes access and refresh tokens on behalf of the
// client they were issued to.
type RevocationService struct {
	clients *client.Service
	tokens  *TokenService
	repo    domain.TokenRepository
	now     func() time.Time
}

func NewRevocationService(clients *client.Service, tokens *TokenService, repo domain.TokenRepository) *RevocationService {
	return &RevocationService{clients: clients, tokens: tokens, repo: repo, now: time.Now}
}

// Revoke authenticates the client and revokes token. Unknown, malformed and
// already revoked tokens are not an error. The hint only decides which
// lookup runs first.
func (s *RevocationService) Revoke(ctx context.Context, creds client.Credentials, token, hint string) error {
	c, err := s.clients.Authenticate(ctx, creds, client.AuthOptions{AllowPersonal: true})
	if err != nil {
		return err
	}

	if token == "" {
		return serrors.NewInvalidRequest("token is required.")
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		log.Debug().Err(err).Str("client_id", c.ID).Msg("ignoring revocation of an unverifiable token")
		return nil
	}

	lookups := []func(context.Context, *domain.Client, string) (bool, error){s.revokeAccess, s.revokeRefresh}
	if hint == TokenTypeHintRefreshToken {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, revoke := range lookups {
		found, err := revoke(ctx, c, claims.ID)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
	}

	return nil
}

func (s *RevocationService) revokeAccess(ctx context.Context, c *domain.Client, id string) (bool, error) {
	t, err := s.repo.GetAccessToken(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load access token: %w", err)
	}
	if t.ClientID != c.ID {
		return true, serrors.NewUnauthorizedClient("The token was not issued to this client.")
	}
	if t.IsRevoked() {
		return true, nil
	}

	if err := s.tokens.RevokeAccessToken(ctx, id); err != nil {
		return true, fmt.Errorf("failed to revoke access token: %w", err)
	}

	s.revoked(c, t.UserID, id, TokenTypeHintAccessToken)

	return true, nil
}

func (s *RevocationService) revokeRefresh(ctx context.Context, c *domain.Client, id string) (bool, error) {
	t, err := s.repo.GetRefreshToken(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if t.ClientID != c.ID {
		return true, serrors.NewUnauthorizedClient("The token was not issued to this client.")
	}
	if t.IsRevoked() {
		return true, nil
	}

	if err := s.repo.RevokeRefreshToken(ctx, id, s.now().UTC()); err != nil {
		return true, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.revoked(c, "", id, TokenTypeHintRefreshToken)

	return true, nil
}

func (s *RevocationService) revoked(c *domain.Client, subject, id, kind string) {
	metrics.TokensRevokedTotal.WithLabelValues(kind).Inc()
	audit.Log(audit.Event{
		Action:   audit.ActionTokenRevoked,
		ClientID: c.ID,
		Subject:  subject,
		Target:   id,
		Details:  kind,
		Success:  true,
	})
}

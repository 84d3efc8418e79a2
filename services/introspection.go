package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// IntrospectionResponse is the RFC 7662 introspection response. Only Active
// is set for tokens that are not active.
type IntrospectionResponse struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	TokenID   string   `json:"jti,omitempty"`
}

// IntrospectionService answers token introspection requests from
// authenticated clients.
type IntrospectionService struct {
	clients *client.Service
	tokens  *TokenService
	repo    domain.TokenRepository
	now     func() time.Time
}

func NewIntrospectionService(clients *client.Service, tokens *TokenService, repo domain.TokenRepository) *IntrospectionService {
	return &IntrospectionService{clients: clients, tokens: tokens, repo: repo, now: time.Now}
}

// Introspect reports whether token is active.
func (s *IntrospectionService) Introspect(ctx context.Context, creds client.Credentials, token, hint string) (*IntrospectionResponse, error) {
	if _, err := s.clients.Authenticate(ctx, creds, client.AuthOptions{AllowPersonal: true}); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, serrors.NewInvalidRequest("token is required.")
	}

	inactive := &IntrospectionResponse{Active: false}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return inactive, nil
	}

	now := s.now()
	resp := &IntrospectionResponse{
		ClientID: claims.ClientID,
		Subject:  claims.Subject,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Unix()
	}

	lookups := []func(context.Context, *IntrospectionResponse, time.Time) (bool, error){s.access, s.refresh}
	if hint == TokenTypeHintRefreshToken {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, lookup := range lookups {
		found, err := lookup(ctx, resp, now)
		if err != nil {
			return nil, err
		}
		if found {
			if !resp.Active {
				return inactive, nil
			}
			return resp, nil
		}
	}

	return inactive, nil
}

func (s *IntrospectionService) access(ctx context.Context, resp *IntrospectionResponse, now time.Time) (bool, error) {
	t, err := s.tokens.AccessTokenRecord(ctx, resp.TokenID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load access token: %w", err)
	}

	resp.Active = t.IsActive(now)
	resp.Scope = t.Scope
	resp.TokenType = s.tokens.octx.TokenType
	resp.ExpiresAt = t.ExpiresAt.Unix()

	return true, nil
}

func (s *IntrospectionService) refresh(ctx context.Context, resp *IntrospectionResponse, now time.Time) (bool, error) {
	t, err := s.repo.GetRefreshToken(ctx, resp.TokenID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load refresh token: %w", err)
	}

	resp.Active = !t.IsRevoked() && !t.IsExpired(now)
	resp.TokenType = TokenTypeHintRefreshToken
	resp.ExpiresAt = t.ExpiresAt.Unix()

	return true, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/scope"
	"github.com/rs/zerolog/log"
)

// RefreshTokenGrant rotates a refresh token: the presented token is consumed
// and a new access/refresh pair is issued with the original grant type.
//
// A refresh token is only accepted once the access token it was issued with
// has expired.
type RefreshTokenGrant struct {
	tokens *TokenService
	repo   domain.TokenRepository
	now    func() time.Time
}

func NewRefreshTokenGrant(tokens *TokenService, repo domain.TokenRepository) *RefreshTokenGrant {
	return &RefreshTokenGrant{tokens: tokens, repo: repo, now: time.Now}
}

func (g *RefreshTokenGrant) GrantType() domain.GrantType {
	return domain.GrantRefreshToken
}

func (g *RefreshTokenGrant) Handle(ctx context.Context, c *domain.Client, req *TokenRequest) (*IssuedTokens, error) {
	if req.RefreshToken == "" {
		return nil, serrors.NewInvalidRequest("refresh_token is required.")
	}

	claims, err := g.tokens.Verify(req.RefreshToken)
	if err != nil {
		return nil, serrors.NewInvalidGrant(err.Error())
	}

	refresh, err := g.repo.GetRefreshToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("Unknown refresh token.")
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	access, err := g.repo.GetAccessToken(ctx, refresh.AccessTokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("Unknown refresh token.")
		}
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}

	now := g.now().UTC()
	if !access.IsExpired(now) {
		return nil, serrors.NewInvalidGrant("The access token associated with the refresh token is still active.")
	}
	if refresh.IsExpired(now) {
		return nil, serrors.NewInvalidGrant("The refresh token is expired.")
	}
	if refresh.IsRevoked() {
		g.replayed(c, access, refresh)
		return nil, serrors.NewInvalidGrant("The refresh token is revoked.")
	}
	if c.ID != claims.ClientID || c.ID != refresh.ClientID {
		return nil, serrors.NewInvalidGrant("Invalid refresh token. client_id does not match.")
	}

	granted := access.Scope
	if req.Scope != "" && granted != "" {
		if dup := scope.Overlap(granted, req.Scope); len(dup) > 0 {
			return nil, serrors.NewInvalidScope(dup[0] + " is already in the previous access token scope.")
		}
		granted = scope.Union(granted, req.Scope)
	}

	if err := g.repo.ConsumeRefreshToken(ctx, refresh.ID, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			g.replayed(c, access, refresh)
			return nil, serrors.NewInvalidGrant("The refresh token is revoked.")
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	issued, err := g.tokens.Issue(ctx, IssueOptions{
		Client:    c,
		Grant:     access.Grant,
		Subject:   access.UserID,
		Scope:     granted,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	metrics.TokensRefreshedTotal.Inc()
	log.Debug().Str("client_id", c.ID).Str("refresh_token_id", refresh.ID).
		Str("access_token_id", issued.Access.ID).Msg("refresh token rotated")

	return issued, nil
}

func (g *RefreshTokenGrant) replayed(c *domain.Client, access *domain.AccessToken, refresh *domain.RefreshToken) {
	audit.Log(audit.Event{
		Action:   audit.ActionRefreshReplay,
		ClientID: c.ID,
		Subject:  access.UserID,
		Target:   refresh.ID,
	})
}

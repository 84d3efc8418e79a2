package services

import (
	"context"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// AuthorizationCodeGrant exchanges an authorization code for tokens.
type AuthorizationCodeGrant struct {
	authorizations *AuthorizationService
	tokens         *TokenService
}

func NewAuthorizationCodeGrant(authorizations *AuthorizationService, tokens *TokenService) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{authorizations: authorizations, tokens: tokens}
}

func (g *AuthorizationCodeGrant) GrantType() domain.GrantType {
	return domain.GrantAuthorizationCode
}

func (g *AuthorizationCodeGrant) Handle(ctx context.Context, c *domain.Client, req *TokenRequest) (*IssuedTokens, error) {
	if req.Code == "" {
		return nil, serrors.NewInvalidRequest("code is required.")
	}

	code, err := g.authorizations.Exchange(ctx, c, req.Code, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		return nil, err
	}

	return g.tokens.Issue(ctx, IssueOptions{
		Client:    c,
		Grant:     domain.GrantAuthorizationCode,
		Subject:   code.UserID,
		Scope:     code.Scope,
		UserAgent: req.UserAgent,
	})
}

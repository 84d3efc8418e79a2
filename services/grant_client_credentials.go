package services

import (
	"context"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// ClientCredentialsGrant issues tokens to a client acting on its own behalf.
// The subject is the client itself and no refresh token is issued.
type ClientCredentialsGrant struct {
	tokens *TokenService
}

func NewClientCredentialsGrant(tokens *TokenService) *ClientCredentialsGrant {
	return &ClientCredentialsGrant{tokens: tokens}
}

func (g *ClientCredentialsGrant) GrantType() domain.GrantType {
	return domain.GrantClientCredentials
}

func (g *ClientCredentialsGrant) Handle(ctx context.Context, c *domain.Client, req *TokenRequest) (*IssuedTokens, error) {
	requested := req.Scope
	if requested == "" {
		requested = c.Scope
	}

	return g.tokens.Issue(ctx, IssueOptions{
		Client:    c,
		Grant:     domain.GrantClientCredentials,
		Subject:   c.ID,
		Scope:     requested,
		UserAgent: req.UserAgent,
	})
}

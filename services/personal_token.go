package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// PersonalTokenRequest asks for a personal access token.
type PersonalTokenRequest struct {
	ClientID     string
	ClientSecret string
	Subject      string
	Scope        string
	UserAgent    string
}

// PersonalTokenService issues tokens outside of any OAuth flow, through a
// client registered as personal. Personal tokens are issued with the
// password grant.
type PersonalTokenService struct {
	clients *client.Service
	tokens  *TokenService
}

func NewPersonalTokenService(clients *client.Service, tokens *TokenService) *PersonalTokenService {
	return &PersonalTokenService{clients: clients, tokens: tokens}
}

// Issue issues a personal access token for req.Subject.
func (s *PersonalTokenService) Issue(ctx context.Context, req PersonalTokenRequest) (*IssuedTokens, error) {
	if req.Subject == "" {
		return nil, serrors.NewInvalidRequest("subject is required.")
	}

	c, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidClient("Unknown client")
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	if !s.clients.VerifySecret(c, req.ClientSecret) {
		return nil, serrors.NewInvalidClient("The client secret does not match.")
	}
	if !c.Personal {
		return nil, serrors.NewUnauthorizedClient("Only personal client can be used to generate personal access token.")
	}
	if c.IsRevoked() {
		return nil, serrors.NewInvalidClient("The client related to this request has been revoked.")
	}
	if req.Scope != "" && !scope.Validate(c.Scope, req.Scope) {
		return nil, serrors.NewInvalidScope("The request scope must be in client scopes.")
	}

	issued, err := s.tokens.Issue(ctx, IssueOptions{
		Client:    c,
		Grant:     domain.GrantPassword,
		Subject:   req.Subject,
		Scope:     req.Scope,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	audit.Log(audit.Event{
		Action:   audit.ActionTokenIssued,
		ClientID: c.ID,
		Subject:  req.Subject,
		Target:   issued.Access.ID,
		Details:  "personal access token",
		Success:  true,
	})

	return issued, nil
}

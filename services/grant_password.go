package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// PasswordGrant implements the resource owner password credentials grant.
type PasswordGrant struct {
	authenticate Authenticator
	tokens       *TokenService
	throttle     Throttle
}

// NewPasswordGrant creates the password grant handler. throttle may be nil.
func NewPasswordGrant(authenticate Authenticator, tokens *TokenService, throttle Throttle) *PasswordGrant {
	return &PasswordGrant{authenticate: authenticate, tokens: tokens, throttle: throttle}
}

func (g *PasswordGrant) GrantType() domain.GrantType {
	return domain.GrantPassword
}

func (g *PasswordGrant) Handle(ctx context.Context, c *domain.Client, req *TokenRequest) (*IssuedTokens, error) {
	var missing []string
	if req.Username == "" {
		missing = append(missing, "username")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, serrors.NewInvalidRequest(strings.Join(missing, ", ") + " required.")
	}

	if g.throttle != nil && !g.throttle.Allow(c.ID+"|"+req.RemoteAddr) {
		return nil, &serrors.OAuth2Error{
			Code:        serrors.TemporarilyUnavailable,
			Description: "Too many login attempts. Try again later.",
		}
	}

	subject, err := g.authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("password authentication: %w", err)
	}
	if subject == nil {
		metrics.LoginFailureTotal.Inc()
		audit.Log(audit.Event{
			Action:   audit.ActionLoginFailed,
			ClientID: c.ID,
			Target:   req.Username,
			Details:  "password grant",
		})
		return nil, serrors.NewInvalidGrant("Invalid username or password.")
	}

	return g.tokens.Issue(ctx, IssueOptions{
		Client:    c,
		Grant:     domain.GrantPassword,
		Subject:   subject.ID,
		Scope:     scope.Merge(subject.Scope, req.Scope, c.Scope),
		UserAgent: req.UserAgent,
	})
}

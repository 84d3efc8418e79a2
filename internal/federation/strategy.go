// Package federation lets end-users log in through external OAuth 2.0
// identity providers. Each provider is configured as a Strategy; the Bridge
// drives the redirect and callback legs and maps the external account to a
// local subject.
package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pilab-dev/shadow-oauth/domain"
	"golang.org/x/oauth2"
)

var (
	ErrDuplicateStrategy     = errors.New("duplicate strategy identifier")
	ErrStrategyMisconfigured = errors.New("strategy is misconfigured")
)

// GrantType is the grant a strategy uses against its provider.
type GrantType string

const (
	GrantAuthorizationCode     GrantType = "authorization_code"
	GrantAuthorizationCodePKCE GrantType = "authorization_code_pkce"
)

// UserLookupFunc maps the provider token to a local subject. client is an
// HTTP client authorized with token. It returns a nil subject when no local
// account belongs to the external profile.
type UserLookupFunc func(ctx context.Context, client *http.Client, token *oauth2.Token) (*domain.Subject, error)

// Strategy is one configured external identity provider.
type Strategy struct {
	ID string
	// ProviderName is shown to the end-user. Defaults to ID.
	ProviderName string
	Grant        GrantType
	Config       *oauth2.Config
	Lookup       UserLookupFunc
}

// Name returns the provider name shown to the end-user.
func (s *Strategy) Name() string {
	if s.ProviderName != "" {
		return s.ProviderName
	}

	return s.ID
}

func (s *Strategy) validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: identifier is required", ErrStrategyMisconfigured)
	case s.Config == nil || s.Config.ClientID == "" || s.Config.Endpoint.AuthURL == "" || s.Config.Endpoint.TokenURL == "":
		return fmt.Errorf("%w: %s needs a client id and provider endpoints", ErrStrategyMisconfigured, s.ID)
	case s.Lookup == nil:
		return fmt.Errorf("%w: %s has no user lookup", ErrStrategyMisconfigured, s.ID)
	case s.Grant != GrantAuthorizationCode && s.Grant != GrantAuthorizationCodePKCE:
		return fmt.Errorf("%w: %s uses unsupported grant %q", ErrStrategyMisconfigured, s.ID, s.Grant)
	}

	return nil
}

// Option describes a strategy for the login dialog.
type Option struct {
	Grant        GrantType `json:"grant"`
	ID           string    `json:"identifier"`
	ProviderName string    `json:"provider_name"`
	RedirectURI  string    `json:"redirect_uri"`
}

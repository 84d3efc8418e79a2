package domain

import (
	"fmt"
	"strings"
	"time"
)

// Lifetimes holds a duration per client class.
type Lifetimes struct {
	ConfidentialInternal time.Duration `json:"confidential_internal" mapstructure:"confidential_internal"`
	ConfidentialExternal time.Duration `json:"confidential_external" mapstructure:"confidential_external"`
	PublicInternal       time.Duration `json:"public_internal"       mapstructure:"public_internal"`
	PublicExternal       time.Duration `json:"public_external"       mapstructure:"public_external"`
}

// For returns the lifetime that applies to the client.
func (l Lifetimes) For(c *Client) time.Duration {
	switch {
	case c.Type == ClientTypeConfidential && c.Internal:
		return l.ConfidentialInternal
	case c.Type == ClientTypeConfidential:
		return l.ConfidentialExternal
	case c.Internal:
		return l.PublicInternal
	default:
		return l.PublicExternal
	}
}

// Max returns the longest of the lifetimes.
func (l Lifetimes) Max() time.Duration {
	return max(l.ConfidentialInternal, l.ConfidentialExternal, l.PublicInternal, l.PublicExternal)
}

func (l Lifetimes) valid() bool {
	return l.ConfidentialInternal > 0 && l.ConfidentialExternal > 0 &&
		l.PublicInternal > 0 && l.PublicExternal > 0
}

// OAuthContext is the immutable configuration every grant handler and the
// token codec run with. Build it once, Validate it, and pass it by value.
type OAuthContext struct {
	ProviderName string
	Issuer       string

	// SecretKey signs HMAC tokens. PrivateKeyPEM is used instead for RS*.
	SecretKey        string
	PrivateKeyPEM    string
	SigningAlgorithm string
	TokenType        string

	AuthorizationCodeLifetime time.Duration
	AccessTokenLifetimes      Lifetimes
	RefreshTokenLifetimes     Lifetimes

	// AuthorizationEndpoint is where the login dialog is served. Used to
	// send the user agent back after a federated login.
	AuthorizationEndpoint string
}

// DefaultOAuthContext returns a context populated with the default lifetimes
// and algorithm. SecretKey still has to be set.
func DefaultOAuthContext() OAuthContext {
	return OAuthContext{
		ProviderName:              "Shadow OAuth",
		SigningAlgorithm:          "HS512",
		TokenType:                 "Bearer",
		AuthorizationCodeLifetime: 5 * time.Minute,
		AccessTokenLifetimes: Lifetimes{
			ConfidentialInternal: 24 * time.Hour,
			ConfidentialExternal: 12 * time.Hour,
			PublicInternal:       2 * time.Hour,
			PublicExternal:       time.Hour,
		},
		RefreshTokenLifetimes: Lifetimes{
			ConfidentialInternal: 360 * 24 * time.Hour,
			ConfidentialExternal: 30 * 24 * time.Hour,
			PublicInternal:       30 * 24 * time.Hour,
			PublicExternal:       7 * 24 * time.Hour,
		},
	}
}

// Validate checks that the context can sign tokens and that every lifetime
// is positive.
func (c OAuthContext) Validate() error {
	alg := strings.ToUpper(c.SigningAlgorithm)
	switch {
	case strings.HasPrefix(alg, "HS"):
		if c.SecretKey == "" {
			return fmt.Errorf("oauth context: secret key is required for %s", alg)
		}
	case strings.HasPrefix(alg, "RS"):
		if c.PrivateKeyPEM == "" {
			return fmt.Errorf("oauth context: private key is required for %s", alg)
		}
	default:
		return fmt.Errorf("oauth context: unsupported signing algorithm %q", c.SigningAlgorithm)
	}

	if c.TokenType == "" {
		return fmt.Errorf("oauth context: token type is required")
	}
	if c.AuthorizationCodeLifetime <= 0 {
		return fmt.Errorf("oauth context: authorization code lifetime must be positive")
	}
	if !c.AccessTokenLifetimes.valid() || !c.RefreshTokenLifetimes.valid() {
		return fmt.Errorf("oauth context: token lifetimes must be positive")
	}

	return nil
}

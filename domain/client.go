package domain

import (
	"fmt"
	"net/url"
	"slices"
	"time"
)

// ClientType defines the type of client application. Confidential or Public
type ClientType string

const (
	// ClientTypeConfidential clients can securely store secrets
	ClientTypeConfidential ClientType = "confidential"
	// ClientTypePublic clients cannot securely store secrets (mobile apps, SPAs)
	ClientTypePublic ClientType = "public"
)

// ClientProfile describes where the client application runs.
type ClientProfile string

const (
	ProfileWeb            ClientProfile = "web"
	ProfileUserAgentBased ClientProfile = "user-agent-based"
	ProfileNative         ClientProfile = "native"
)

// Valid reports whether p is one of the known profiles.
func (p ClientProfile) Valid() bool {
	switch p {
	case ProfileWeb, ProfileUserAgentBased, ProfileNative:
		return true
	}

	return false
}

// GrantType is an OAuth 2.0 authorization grant.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
	GrantPassword          GrantType = "password"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
)

// Client represents an OAuth2 client application
//
//nolint:tagliatelle
type Client struct {
	ID           string        `bson:"_id"                     json:"client_id"`
	Name         string        `bson:"name"                    json:"name"`
	Domain       string        `bson:"domain,omitempty"        json:"domain,omitempty"`
	Logo         string        `bson:"logo,omitempty"          json:"logo,omitempty"`
	Description  string        `bson:"description,omitempty"   json:"description,omitempty"`
	SecretHash   string        `bson:"secret_hash,omitempty"   json:"-"`
	Type         ClientType    `bson:"client_type"             json:"client_type"`
	Profile      ClientProfile `bson:"client_profile"          json:"client_profile"`
	Grants       []GrantType   `bson:"grants"                  json:"grants"`
	Scope        string        `bson:"scope"                   json:"scope"`
	RedirectURIs []string      `bson:"redirect_uris,omitempty" json:"redirect_uris,omitempty"`
	Internal     bool          `bson:"internal"                json:"internal"`
	Personal     bool          `bson:"personal"                json:"personal"`
	RevokedAt    *time.Time    `bson:"revoked_at,omitempty"    json:"revoked_at,omitempty"`
	CreatedAt    time.Time     `bson:"created_at"              json:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"              json:"updated_at"`
}

// AllowedGrants returns the grants a client of the given class may use.
func AllowedGrants(t ClientType, internal bool) []GrantType {
	switch {
	case t == ClientTypeConfidential && internal:
		return []GrantType{GrantImplicit, GrantAuthorizationCode, GrantPassword, GrantClientCredentials}
	case t == ClientTypePublic && internal:
		return []GrantType{GrantImplicit, GrantAuthorizationCode, GrantPassword}
	default:
		return []GrantType{GrantImplicit, GrantAuthorizationCode}
	}
}

// Normalize derives the client type and grants from the profile and the
// internal flag. It must run before Validate and before the client is stored.
func (c *Client) Normalize() {
	if c.Profile == ProfileWeb {
		c.Type = ClientTypeConfidential
	} else {
		c.Type = ClientTypePublic
		c.SecretHash = ""
	}

	c.Grants = AllowedGrants(c.Type, c.Internal)

	if c.Internal && c.Scope == "" {
		c.Scope = "*"
	}
}

// Validate checks the registration invariants of a normalized client.
func (c *Client) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidClient)
	}
	if !c.Profile.Valid() {
		return fmt.Errorf("%w: unknown client profile %q", ErrInvalidClient, c.Profile)
	}
	if !c.Internal && c.Scope == "*" {
		return fmt.Errorf("%w: * is not allowed as scope value for external client", ErrInvalidClient)
	}
	if (c.Profile == ProfileWeb || c.Profile == ProfileUserAgentBased) && c.Domain == "" {
		return fmt.Errorf("%w: domain is required for %s clients", ErrInvalidClient, c.Profile)
	}
	if c.Domain != "" && !isAbsoluteURL(c.Domain) {
		return fmt.Errorf("%w: domain must be an absolute URL", ErrInvalidClient)
	}
	if c.Logo != "" && !isAbsoluteURL(c.Logo) {
		return fmt.Errorf("%w: logo must be an absolute URL", ErrInvalidClient)
	}

	needsRedirect := c.AllowsGrant(GrantAuthorizationCode) || c.AllowsGrant(GrantImplicit)
	if needsRedirect && len(c.RedirectURIs) == 0 {
		return fmt.Errorf("%w: at least one redirect URI is required", ErrInvalidClient)
	}
	for _, uri := range c.RedirectURIs {
		if u, err := url.Parse(uri); err != nil || u.Scheme == "" || u.Fragment != "" {
			return fmt.Errorf("%w: invalid redirect URI %q", ErrInvalidClient, uri)
		}
	}

	if c.Type == ClientTypeConfidential && c.SecretHash == "" {
		return fmt.Errorf("%w: confidential clients require a secret", ErrInvalidClient)
	}
	if c.Type == ClientTypePublic && c.SecretHash != "" {
		return fmt.Errorf("%w: public clients cannot hold a secret", ErrInvalidClient)
	}

	return nil
}

// IsConfidential reports whether the client authenticates with a secret.
func (c *Client) IsConfidential() bool {
	return c.Type == ClientTypeConfidential
}

// IsRevoked reports whether the client has been revoked.
func (c *Client) IsRevoked() bool {
	return c.RevokedAt != nil
}

// AllowsGrant reports whether g is among the client's grants.
func (c *Client) AllowsGrant(g GrantType) bool {
	return slices.Contains(c.Grants, g)
}

// Audience is the value used for the aud and azp claims.
func (c *Client) Audience() string {
	if c.Domain != "" {
		return c.Domain
	}

	return c.ID
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

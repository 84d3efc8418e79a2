// Package api holds the documents served by the HTTP transport.
package api

import (
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/federation"
)

const (
	TokenTypeAccessToken  = "access_token"
	TokenTypeRefreshToken = "refresh_token"
)

// AuthorizationServerMetadata is the RFC 8414 metadata document.
//
//nolint:tagliatelle
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgs      []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	RevocationEndpointAuthMethods     []string `json:"revocation_endpoint_auth_methods_supported"`
	IntrospectionEndpointAuthMethods  []string `json:"introspection_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// DialogClient is the part of the client shown on the login dialog.
type DialogClient struct {
	Name        string               `json:"name"`
	Domain      string               `json:"domain,omitempty"`
	Logo        string               `json:"logo,omitempty"`
	Description string               `json:"description,omitempty"`
	Internal    bool                 `json:"internal"`
	Type        domain.ClientType    `json:"client_type"`
	Profile     domain.ClientProfile `json:"client_profile"`
	Scope       string               `json:"scope,omitempty"`
}

// NewDialogClient copies the displayable fields of c.
func NewDialogClient(c *domain.Client) DialogClient {
	return DialogClient{
		Name:        c.Name,
		Domain:      c.Domain,
		Logo:        c.Logo,
		Description: c.Description,
		Internal:    c.Internal,
		Type:        c.Type,
		Profile:     c.Profile,
		Scope:       c.Scope,
	}
}

// Dialog describes a pending authorization request for the login page.
type Dialog struct {
	ProviderName string              `json:"provider_name"`
	FormAction   string              `json:"form_action"`
	CancelURL    string              `json:"cancel_url"`
	Scope        string              `json:"scope,omitempty"`
	Error        string              `json:"error,omitempty"`
	Client       DialogClient        `json:"client"`
	Strategies   []federation.Option `json:"strategies"`
}

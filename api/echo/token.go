package oauthecho

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-oauth/api"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/rs/zerolog/log"
)

// TokenHandler is the token endpoint.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	req := &services.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		Credentials:  clientCredentials(c),
		Scope:        c.FormValue("scope"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		Username:     c.FormValue("username"),
		Password:     c.FormValue("password"),
		RefreshToken: c.FormValue("refresh_token"),
		UserAgent:    c.Request().UserAgent(),
		RemoteAddr:   c.RealIP(),
	}

	resp, err := oa.Grants.Token(c.Request().Context(), req)
	if err != nil {
		return oa.renderError(c, err)
	}

	noStore(c)

	return c.JSON(http.StatusOK, resp)
}

// RevokeHandler is the RFC 7009 revocation endpoint.
func (oa *OAuth2API) RevokeHandler(c echo.Context) error {
	err := oa.Revocation.Revoke(c.Request().Context(), clientCredentials(c),
		c.FormValue("token"), c.FormValue("token_type_hint"))
	if err != nil {
		return oa.renderError(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// IntrospectHandler is the RFC 7662 introspection endpoint.
func (oa *OAuth2API) IntrospectHandler(c echo.Context) error {
	resp, err := oa.Introspection.Introspect(c.Request().Context(), clientCredentials(c),
		c.FormValue("token"), c.FormValue("token_type_hint"))
	if err != nil {
		return oa.renderError(c, err)
	}

	noStore(c)

	return c.JSON(http.StatusOK, resp)
}

// MetadataHandler serves the authorization server metadata document.
func (oa *OAuth2API) MetadataHandler(c echo.Context) error {
	issuer := oa.OAuthContext.Issuer
	authMethods := []string{"client_secret_basic", "client_secret_post"}

	doc := api.AuthorizationServerMetadata{
		Issuer:                 issuer,
		AuthorizationEndpoint:  issuer + oa.path(PathAuthorize),
		TokenEndpoint:          issuer + oa.path(PathToken),
		RevocationEndpoint:     issuer + oa.path(PathRevoke),
		IntrospectionEndpoint:  issuer + oa.path(PathIntrospect),
		ResponseTypesSupported: []string{string(domain.ResponseTypeCode), string(domain.ResponseTypeToken)},
		ResponseModesSupported: []string{"query", "fragment"},
		GrantTypesSupported: []string{
			string(domain.GrantAuthorizationCode),
			string(domain.GrantImplicit),
			string(domain.GrantPassword),
			string(domain.GrantClientCredentials),
			string(domain.GrantRefreshToken),
		},
		TokenEndpointAuthMethodsSupported: append(authMethods, "none"),
		TokenEndpointAuthSigningAlgs:      []string{oa.OAuthContext.SigningAlgorithm},
		RevocationEndpointAuthMethods:     authMethods,
		IntrospectionEndpointAuthMethods:  authMethods,
		CodeChallengeMethodsSupported:     []string{domain.ChallengeMethodPlain, domain.ChallengeMethodS256},
	}

	if oa.Scopes != nil {
		scopes, err := oa.Scopes.List(c.Request().Context())
		if err != nil {
			log.Warn().Err(err).Msg("failed to list scopes for metadata")
		}
		for _, s := range scopes {
			doc.ScopesSupported = append(doc.ScopesSupported, s.Name)
		}
	}

	return c.JSON(http.StatusOK, doc)
}

func noStore(c echo.Context) {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
}

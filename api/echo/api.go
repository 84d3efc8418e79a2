// Package oauthecho serves the authorization server endpoints with echo.
package oauthecho

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/federation"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Route paths below BasePath.
const (
	PathAuthorize        = "/authorize"
	PathDialog           = "/dialog"
	PathAuthorizeSubmit  = "/authorize-submit"
	PathToken            = "/token"
	PathRevoke           = "/revoke"
	PathIntrospect       = "/introspect"
	PathStrategy         = "/strategy/:identifier"
	PathStrategyCallback = "/strategy/callback/:identifier"

	PathMetadata = "/.well-known/oauth-authorization-server"
	PathMetrics  = "/metrics"
)

// Config tunes the HTTP layer.
type Config struct {
	// BasePath prefixes every OAuth route. Defaults to /oauth/v2.
	BasePath string
	// Realm is reported in authentication challenges.
	Realm string
	// FlowTTL bounds how long a login dialog stays usable.
	FlowTTL time.Duration
	// FlowCookie names the cookie carrying the flow id.
	FlowCookie string
	// SecureCookies marks the flow cookie Secure.
	SecureCookies bool
}

func (c Config) withDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = "/oauth/v2"
	}
	c.BasePath = strings.TrimRight(c.BasePath, "/")
	if c.Realm == "" {
		c.Realm = "shadow-oauth"
	}
	if c.FlowTTL <= 0 {
		c.FlowTTL = 15 * time.Minute
	}
	if c.FlowCookie == "" {
		c.FlowCookie = "soauth_flow"
	}

	return c
}

// Dependencies are the services behind the endpoints. Bridge, Throttle,
// Scopes and Gatherer may be nil.
type Dependencies struct {
	OAuthContext  domain.OAuthContext
	Clients       *client.Service
	Authorization *services.AuthorizationService
	Grants        *services.GrantService
	Revocation    *services.RevocationService
	Introspection *services.IntrospectionService
	Scopes        *services.ScopeService
	Bridge        *federation.Bridge
	Flows         domain.FlowStore
	Authenticate  services.Authenticator
	Throttle      services.Throttle
	Gatherer      prometheus.Gatherer
}

// OAuth2API holds the endpoint handlers.
type OAuth2API struct {
	Dependencies
	cfg Config
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(deps Dependencies, cfg Config) *OAuth2API {
	return &OAuth2API{Dependencies: deps, cfg: cfg.withDefaults()}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	g := e.Group(oa.cfg.BasePath)

	g.GET(PathAuthorize, oa.AuthorizeHandler)
	g.GET(PathDialog, oa.DialogHandler)
	g.POST(PathAuthorizeSubmit, oa.LoginHandler)
	g.GET(PathStrategy, oa.StrategyRedirectHandler)
	g.GET(PathStrategyCallback, oa.StrategyCallbackHandler)

	g.POST(PathToken, oa.TokenHandler)
	g.POST(PathRevoke, oa.RevokeHandler)
	g.POST(PathIntrospect, oa.IntrospectHandler)

	e.GET(PathMetadata, oa.MetadataHandler)

	if oa.Gatherer != nil {
		e.GET(PathMetrics, echo.WrapHandler(promhttp.HandlerFor(oa.Gatherer, promhttp.HandlerOpts{})))
	}
}

func (oa *OAuth2API) path(p string) string {
	return oa.cfg.BasePath + p
}

func (oa *OAuth2API) strategyPath(id string) string {
	return oa.path(strings.Replace(PathStrategy, ":identifier", id, 1))
}

// clientCredentials reads HTTP Basic credentials from the Authorization or
// Proxy-Authorization header, falling back to client_id and client_secret
// form fields.
func clientCredentials(c echo.Context) client.Credentials {
	req := c.Request()

	header := req.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		header = req.Header.Get("Proxy-Authorization")
	}

	if scheme, payload, ok := strings.Cut(header, " "); ok {
		if strings.EqualFold(scheme, "Basic") {
			if raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload)); err == nil {
				id, secret, _ := strings.Cut(string(raw), ":")
				return client.Credentials{ClientID: id, ClientSecret: secret, Scheme: scheme}
			}
		}
		return client.Credentials{
			ClientID:     c.FormValue("client_id"),
			ClientSecret: c.FormValue("client_secret"),
			Scheme:       scheme,
		}
	}

	return client.Credentials{
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
	}
}

// renderError delivers err to the user agent: redirect errors go to the
// client redirect URI, everything else is a JSON body.
func (oa *OAuth2API) renderError(c echo.Context, err error) error {
	var rerr *serrors.RedirectError
	if errors.As(err, &rerr) {
		return c.Redirect(http.StatusFound, rerr.Location())
	}

	oerr, ok := serrors.AsOAuth2Error(err)
	if !ok {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
	}

	if oerr.Code == serrors.InvalidClient {
		req := c.Request()
		var header, credentials string
		switch {
		case req.Header.Get(echo.HeaderAuthorization) != "":
			header, credentials = echo.HeaderWWWAuthenticate, req.Header.Get(echo.HeaderAuthorization)
		case req.Header.Get("Proxy-Authorization") != "":
			header, credentials = "Proxy-Authenticate", req.Header.Get("Proxy-Authorization")
		}
		if header != "" {
			scheme, _, _ := strings.Cut(credentials, " ")
			c.Response().Header().Set(header, oerr.Challenge(scheme, oa.cfg.Realm))
		}
	}

	return c.JSON(oerr.Status(), oerr)
}

// Package soauth is an OAuth 2.0 authorization server engine. Engine wires
// the grant handlers, the authorization code state machine, revocation,
// introspection and federated login over pluggable storage.
package soauth

import (
	"errors"
	"fmt"
	"time"

	oauthecho "github.com/pilab-dev/shadow-oauth/api/echo"
	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/internal/federation"
	"github.com/pilab-dev/shadow-oauth/middleware"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configure an Engine. The four repositories, the flow store and
// Authenticate are required.
type Options struct {
	OAuthContext domain.OAuthContext

	Clients   domain.ClientRepository
	Scopes    domain.ScopeRepository
	AuthCodes domain.AuthCodeRepository
	Tokens    domain.TokenRepository
	Flows     domain.FlowStore

	// TokenCache fronts access token lookups. Optional.
	TokenCache cache.TokenStore
	// Hasher hashes client secrets. Defaults to bcrypt.
	Hasher auth.PasswordHasher

	// Authenticate checks end-user credentials for the login dialog and
	// the password grant.
	Authenticate services.Authenticator
	// Claims resolves subject profiles for resource servers. Optional.
	Claims services.ClaimsLookup
	// Throttle limits login attempts per remote address. Optional.
	Throttle services.Throttle

	Strategies []*federation.Strategy

	// PurgeInterval enables the purge job when positive.
	PurgeInterval time.Duration
}

// Engine is the assembled authorization server.
type Engine struct {
	Context domain.OAuthContext

	Clients       *client.Service
	Scopes        *services.ScopeService
	Tokens        *services.TokenService
	Authorization *services.AuthorizationService
	Grants        *services.GrantService
	Revocation    *services.RevocationService
	Introspection *services.IntrospectionService
	Personal      *services.PersonalTokenService
	Verifier      *services.Verifier
	Bridge        *federation.Bridge
	// Purger is nil unless Options.PurgeInterval is positive.
	Purger *services.Purger

	flows        domain.FlowStore
	authenticate services.Authenticator
	throttle     services.Throttle
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	if err := opts.OAuthContext.Validate(); err != nil {
		return nil, err
	}
	if opts.Clients == nil || opts.Scopes == nil || opts.AuthCodes == nil || opts.Tokens == nil {
		return nil, errors.New("soauth: client, scope, authorization code and token repositories are required")
	}
	if opts.Flows == nil {
		return nil, errors.New("soauth: flow store is required")
	}
	if opts.Authenticate == nil {
		return nil, errors.New("soauth: authentication callback is required")
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.NewBcryptPasswordHasher(0)
	}

	octx := opts.OAuthContext

	signer, err := services.NewTokenSigner(octx)
	if err != nil {
		return nil, fmt.Errorf("soauth: %w", err)
	}

	bridge, err := federation.NewBridge(opts.Strategies...)
	if err != nil {
		return nil, fmt.Errorf("soauth: %w", err)
	}

	clients := client.NewService(opts.Clients, opts.Scopes, opts.Hasher)
	tokens := services.NewTokenService(octx, signer, opts.Tokens, opts.TokenCache, opts.Scopes)
	authorization := services.NewAuthorizationService(octx, clients, opts.AuthCodes, tokens)

	e := &Engine{
		Context:       octx,
		Clients:       clients,
		Scopes:        services.NewScopeService(opts.Scopes),
		Tokens:        tokens,
		Authorization: authorization,
		Grants: services.NewGrantService(clients,
			services.NewAuthorizationCodeGrant(authorization, tokens),
			services.NewClientCredentialsGrant(tokens),
			services.NewPasswordGrant(opts.Authenticate, tokens, opts.Throttle),
			services.NewRefreshTokenGrant(tokens, opts.Tokens),
		),
		Revocation:    services.NewRevocationService(clients, tokens, opts.Tokens),
		Introspection: services.NewIntrospectionService(clients, tokens, opts.Tokens),
		Personal:      services.NewPersonalTokenService(clients, tokens),
		Verifier:      services.NewVerifier(tokens, opts.Claims),
		Bridge:        bridge,
		flows:         opts.Flows,
		authenticate:  opts.Authenticate,
		throttle:      opts.Throttle,
	}

	if opts.PurgeInterval > 0 {
		e.Purger = services.NewPurger(octx, opts.AuthCodes, opts.Tokens, opts.PurgeInterval)
	}

	return e, nil
}

// HTTP returns the echo transport of the engine. gatherer, when set, is
// served on /metrics.
func (e *Engine) HTTP(cfg oauthecho.Config, gatherer prometheus.Gatherer) *oauthecho.OAuth2API {
	return oauthecho.NewOAuth2API(oauthecho.Dependencies{
		OAuthContext:  e.Context,
		Clients:       e.Clients,
		Authorization: e.Authorization,
		Grants:        e.Grants,
		Revocation:    e.Revocation,
		Introspection: e.Introspection,
		Scopes:        e.Scopes,
		Bridge:        e.Bridge,
		Flows:         e.flows,
		Authenticate:  e.authenticate,
		Throttle:      e.throttle,
		Gatherer:      gatherer,
	}, cfg)
}

// Guard returns the echo middleware protecting resource routes with tokens
// of this engine.
func (e *Engine) Guard(realm string) *middleware.Authenticator {
	return middleware.NewAuthenticator(e.Verifier, realm)
}

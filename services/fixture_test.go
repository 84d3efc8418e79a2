package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redirectURI = "https://app.example.com/callback"

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	clock *clock
	octx  domain.OAuthContext

	clientRepo *memory.ClientRepository
	scopeRepo  *memory.ScopeRepository
	codeRepo   *memory.AuthCodeRepository
	tokenRepo  *memory.TokenRepository

	signer        *TokenSigner
	clients       *client.Service
	tokens        *TokenService
	authz         *AuthorizationService
	grants        *GrantService
	revocation    *RevocationService
	introspection *IntrospectionService
	personal      *PersonalTokenService
	throttle      *stubThrottle
}

type stubThrottle struct {
	deny bool
}

func (s *stubThrottle) Allow(string) bool { return !s.deny }

// authenticate accepts alice/wonderland and bob/builder. Bob may only get
// the read scope.
func authenticate(_ context.Context, username, password string) (*domain.Subject, error) {
	switch {
	case username == "alice" && password == "wonderland":
		return &domain.Subject{ID: "user-alice"}, nil
	case username == "bob" && password == "builder":
		return &domain.Subject{ID: "user-bob", Scope: "read"}, nil
	default:
		return nil, nil
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	octx := domain.DefaultOAuthContext()
	octx.Issuer = "https://auth.example.com"
	octx.SecretKey = "test-signing-secret"
	require.NoError(t, octx.Validate())

	signer, err := NewTokenSigner(octx)
	require.NoError(t, err)

	f := &fixture{
		clock:      &clock{now: time.Now().UTC().Truncate(time.Second)},
		octx:       octx,
		clientRepo: memory.NewClientRepository(),
		scopeRepo:  memory.NewScopeRepository(),
		codeRepo:   memory.NewAuthCodeRepository(),
		tokenRepo:  memory.NewTokenRepository(),
		signer:     signer,
		throttle:   &stubThrottle{},
	}

	for _, name := range []string{"read", "write", "profile"} {
		require.NoError(t, f.scopeRepo.CreateScope(ctx, &domain.Scope{Name: name}))
	}

	tokenCache := cache.NewMemoryTokenStore(time.Hour)
	t.Cleanup(func() { _ = tokenCache.Close() })

	f.clients = client.NewService(f.clientRepo, f.scopeRepo, auth.NewBcryptPasswordHasher(4))

	f.tokens = NewTokenService(octx, signer, f.tokenRepo, tokenCache, f.scopeRepo)
	f.tokens.now = f.clock.Now

	f.authz = NewAuthorizationService(octx, f.clients, f.codeRepo, f.tokens)
	f.authz.now = f.clock.Now

	refresh := NewRefreshTokenGrant(f.tokens, f.tokenRepo)
	refresh.now = f.clock.Now

	f.grants = NewGrantService(f.clients,
		NewAuthorizationCodeGrant(f.authz, f.tokens),
		NewClientCredentialsGrant(f.tokens),
		NewPasswordGrant(authenticate, f.tokens, f.throttle),
		refresh,
	)

	f.revocation = NewRevocationService(f.clients, f.tokens, f.tokenRepo)
	f.revocation.now = f.clock.Now

	f.introspection = NewIntrospectionService(f.clients, f.tokens, f.tokenRepo)
	f.introspection.now = f.clock.Now

	f.personal = NewPersonalTokenService(f.clients, f.tokens)

	return f
}

// register stores a client and returns it with its plaintext secret.
func (f *fixture) register(t *testing.T, profile domain.ClientProfile, internal bool, scopes string) (*domain.Client, string) {
	t.Helper()

	c, secret, err := f.clients.Register(context.Background(), client.Registration{
		Name:         "Test App",
		Domain:       "https://app.example.com",
		Profile:      profile,
		Scope:        scopes,
		RedirectURIs: []string{redirectURI},
		Internal:     internal,
	})
	require.NoError(t, err)

	return c, secret
}

func (f *fixture) creds(c *domain.Client, secret string) client.Credentials {
	return client.Credentials{ClientID: c.ID, ClientSecret: secret}
}

// passwordTokens runs a password grant for alice.
func (f *fixture) passwordTokens(t *testing.T, c *domain.Client, secret, scopes string) *TokenResponse {
	t.Helper()

	resp, err := f.grants.Token(context.Background(), &TokenRequest{
		GrantType:   string(domain.GrantPassword),
		Credentials: f.creds(c, secret),
		Username:    "alice",
		Password:    "wonderland",
		Scope:       scopes,
	})
	require.NoError(t, err)

	return resp
}

// authorize starts and completes an authorization request for subject and
// returns the issued code value.
func (f *fixture) authorize(t *testing.T, req *client.AuthorizationRequest, subject *domain.Subject) string {
	t.Helper()
	ctx := context.Background()

	code, err := f.authz.Start(ctx, req)
	require.NoError(t, err)

	res, err := f.authz.Complete(ctx, code.ID, subject)
	require.NoError(t, err)

	loc, err := url.Parse(res.Location)
	require.NoError(t, err)
	require.Equal(t, req.State, loc.Query().Get("state"))

	value := loc.Query().Get("code")
	require.NotEmpty(t, value)

	return value
}

func requireOAuthError(t *testing.T, err error, code string) *serrors.OAuth2Error {
	t.Helper()

	var oerr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, code, oerr.Code, oerr.Description)

	return oerr
}

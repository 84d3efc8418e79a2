package soauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	soauth "github.com/pilab-dev/shadow-oauth"
	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/memory"
	"github.com/pilab-dev/shadow-oauth/middleware"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noLogin(context.Context, string, string) (*domain.Subject, error) { return nil, nil }

func options(t *testing.T) soauth.Options {
	t.Helper()

	octx := domain.DefaultOAuthContext()
	octx.Issuer = "https://auth.example.com"
	octx.SecretKey = "engine-test-secret"

	flows := cache.NewMemoryFlowStore(time.Minute)
	t.Cleanup(func() { _ = flows.Close() })

	return soauth.Options{
		OAuthContext: octx,
		Clients:      memory.NewClientRepository(),
		Scopes:       memory.NewScopeRepository(),
		AuthCodes:    memory.NewAuthCodeRepository(),
		Tokens:       memory.NewTokenRepository(),
		Flows:        flows,
		Hasher:       auth.NewBcryptPasswordHasher(4),
		Authenticate: noLogin,
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *soauth.Options)
		wantErr string
	}{
		{
			name:    "missing secret",
			mutate:  func(o *soauth.Options) { o.OAuthContext.SecretKey = "" },
			wantErr: "secret key is required",
		},
		{
			name:    "missing repository",
			mutate:  func(o *soauth.Options) { o.Tokens = nil },
			wantErr: "repositories are required",
		},
		{
			name:    "missing flow store",
			mutate:  func(o *soauth.Options) { o.Flows = nil },
			wantErr: "flow store is required",
		},
		{
			name:    "missing authentication",
			mutate:  func(o *soauth.Options) { o.Authenticate = nil },
			wantErr: "authentication callback is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options(t)
			tt.mutate(&opts)

			_, err := soauth.New(opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Purger(t *testing.T) {
	engine, err := soauth.New(options(t))
	require.NoError(t, err)
	assert.Nil(t, engine.Purger)

	opts := options(t)
	opts.PurgeInterval = time.Hour
	engine, err = soauth.New(opts)
	require.NoError(t, err)
	assert.NotNil(t, engine.Purger)
}

func TestEngine_GuardAcceptsPersonalToken(t *testing.T) {
	ctx := context.Background()

	engine, err := soauth.New(options(t))
	require.NoError(t, err)

	_, err = engine.Scopes.Create(ctx, "repo", "", "")
	require.NoError(t, err)

	personal, secret, err := engine.Clients.Register(ctx, client.Registration{
		Name:         "CLI",
		Domain:       "https://cli.example.com",
		Profile:      domain.ProfileWeb,
		Scope:        "repo",
		RedirectURIs: []string{"https://cli.example.com/cb"},
		Internal:     true,
		Personal:     true,
	})
	require.NoError(t, err)

	issued, err := engine.Personal.Issue(ctx, services.PersonalTokenRequest{
		ClientID:     personal.ID,
		ClientSecret: secret,
		Subject:      "user-alice",
		Scope:        "repo",
	})
	require.NoError(t, err)

	e := echo.New()
	e.GET("/repos", func(c echo.Context) error {
		result, _ := middleware.FromContext(c)
		return c.String(http.StatusOK, result.Subject)
	}, engine.Guard("").Authorize(services.VerifyOptions{Scope: "repo"}))

	req := httptest.NewRequest(http.MethodGet, "/repos", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+issued.AccessToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-alice", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/repos", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderWWWAuthenticate), `error="invalid_token"`)
}

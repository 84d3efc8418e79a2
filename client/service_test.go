package client_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClientRepository is a mock implementation of domain.ClientRepository
type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) CreateClient(ctx context.Context, c *domain.Client) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockClientRepository) UpdateClient(ctx context.Context, c *domain.Client) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

func (m *MockClientRepository) ListClients(ctx context.Context) ([]*domain.Client, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*domain.Client), args.Error(1)
}

type fixture struct {
	svc    *client.Service
	scopes *memory.ScopeRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	scopes := memory.NewScopeRepository()
	for _, name := range []string{"profile", "orders:read", "orders:write"} {
		require.NoError(t, scopes.CreateScope(context.Background(), &domain.Scope{Name: name}))
	}

	return &fixture{
		svc:    client.NewService(memory.NewClientRepository(), scopes, auth.NewBcryptPasswordHasher(4)),
		scopes: scopes,
	}
}

func (f *fixture) register(t *testing.T, reg client.Registration) (*domain.Client, string) {
	t.Helper()

	c, secret, err := f.svc.Register(context.Background(), reg)
	require.NoError(t, err)

	return c, secret
}

func webClient() client.Registration {
	return client.Registration{
		Name:         "Orders",
		Profile:      domain.ProfileWeb,
		Domain:       "https://orders.example.com",
		Scope:        "profile orders:read",
		RedirectURIs: []string{"https://orders.example.com/callback"},
		Internal:     true,
	}
}

func oauthCode(t *testing.T, err error) string {
	t.Helper()

	var oerr *serrors.OAuth2Error
	require.True(t, errors.As(err, &oerr), "expected OAuth2Error, got %v", err)

	return oerr.Code
}

func TestService_Register(t *testing.T) {
	f := newFixture(t)

	t.Run("confidential client gets a secret", func(t *testing.T) {
		c, secret := f.register(t, webClient())

		assert.Equal(t, domain.ClientTypeConfidential, c.Type)
		assert.Len(t, secret, 40)
		assert.NotEqual(t, secret, c.SecretHash)
		assert.True(t, f.svc.VerifySecret(c, secret))
	})

	t.Run("public client has no secret", func(t *testing.T) {
		reg := webClient()
		reg.Profile = domain.ProfileNative
		reg.Domain = ""
		reg.RedirectURIs = []string{"com.example.orders:/callback"}

		c, secret := f.register(t, reg)
		assert.Equal(t, domain.ClientTypePublic, c.Type)
		assert.Empty(t, secret)
		assert.Empty(t, c.SecretHash)
	})

	t.Run("unknown scope is rejected", func(t *testing.T) {
		reg := webClient()
		reg.Scope = "profile billing"

		_, _, err := f.svc.Register(context.Background(), reg)
		assert.ErrorIs(t, err, domain.ErrUnknownScope)
	})

	t.Run("wildcard scope requires internal client", func(t *testing.T) {
		reg := webClient()
		reg.Scope = "*"
		reg.Internal = false

		_, _, err := f.svc.Register(context.Background(), reg)
		assert.ErrorIs(t, err, domain.ErrInvalidClient)
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	confidential, secret := f.register(t, webClient())

	personalReg := webClient()
	personalReg.Personal = true
	personal, personalSecret := f.register(t, personalReg)

	revoked, revokedSecret := f.register(t, webClient())
	_, err := f.svc.Revoke(ctx, revoked.ID)
	require.NoError(t, err)

	tests := []struct {
		name     string
		creds    client.Credentials
		opts     client.AuthOptions
		wantCode string
	}{
		{"missing client id", client.Credentials{}, client.AuthOptions{}, serrors.InvalidRequest},
		{"unknown client", client.Credentials{ClientID: "nope"}, client.AuthOptions{}, serrors.InvalidClient},
		{"personal client", client.Credentials{ClientID: personal.ID, ClientSecret: personalSecret}, client.AuthOptions{}, serrors.UnauthorizedClient},
		{"revoked client", client.Credentials{ClientID: revoked.ID, ClientSecret: revokedSecret}, client.AuthOptions{}, serrors.InvalidClient},
		{"scope outside ceiling", client.Credentials{ClientID: confidential.ID, ClientSecret: secret}, client.AuthOptions{Scope: "orders:write"}, serrors.InvalidScope},
		{"missing secret", client.Credentials{ClientID: confidential.ID}, client.AuthOptions{}, serrors.InvalidRequest},
		{"wrong secret", client.Credentials{ClientID: confidential.ID, ClientSecret: "wrong"}, client.AuthOptions{}, serrors.InvalidClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Authenticate(ctx, tt.creds, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, oauthCode(t, err))
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		c, err := f.svc.Authenticate(ctx, client.Credentials{ClientID: confidential.ID, ClientSecret: secret},
			client.AuthOptions{Scope: "orders:read"})
		require.NoError(t, err)
		assert.Equal(t, confidential.ID, c.ID)
	})

	t.Run("personal client allowed when asked", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, client.Credentials{ClientID: personal.ID, ClientSecret: personalSecret},
			client.AuthOptions{AllowPersonal: true})
		require.NoError(t, err)
	})
}

func TestService_AuthenticateStorageFailure(t *testing.T) {
	repo := new(MockClientRepository)
	repo.On("GetClient", mock.Anything, "c1").Return(nil, errors.New("connection refused"))

	svc := client.NewService(repo, nil, auth.NewBcryptPasswordHasher(4))
	_, err := svc.Authenticate(context.Background(), client.Credentials{ClientID: "c1"}, client.AuthOptions{})

	require.Error(t, err)
	var oerr *serrors.OAuth2Error
	assert.False(t, errors.As(err, &oerr), "storage failures must not be reported as protocol errors")
	repo.AssertExpectations(t)
}

func TestService_ValidateAuthorizationRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c, _ := f.register(t, webClient())
	revoked, _ := f.register(t, webClient())
	_, err := f.svc.Revoke(ctx, revoked.ID)
	require.NoError(t, err)

	valid := func() *client.AuthorizationRequest {
		return &client.AuthorizationRequest{
			ResponseType: "code",
			ClientID:     c.ID,
			RedirectURI:  "https://orders.example.com/callback",
			Scope:        "profile",
			State:        "xyz",
		}
	}

	_, err = f.svc.ValidateAuthorizationRequest(ctx, valid())
	require.NoError(t, err)

	tests := []struct {
		name         string
		mutate       func(r *client.AuthorizationRequest)
		wantCode     string
		wantRedirect bool
	}{
		{"missing parameters", func(r *client.AuthorizationRequest) { r.ClientID = ""; r.RedirectURI = "" }, serrors.InvalidRequest, false},
		{"bad challenge method", func(r *client.AuthorizationRequest) { r.CodeChallengeMethod = "S512" }, serrors.InvalidRequest, false},
		{"unknown client", func(r *client.AuthorizationRequest) { r.ClientID = "nope" }, serrors.InvalidRequest, false},
		{"foreign redirect", func(r *client.AuthorizationRequest) { r.RedirectURI = "https://evil.example.com/cb" }, serrors.InvalidRequest, false},
		{"revoked client", func(r *client.AuthorizationRequest) { r.ClientID = revoked.ID }, serrors.AccessDenied, true},
		{"scope outside ceiling", func(r *client.AuthorizationRequest) { r.Scope = "orders:write" }, serrors.InvalidScope, true},
		{"unsupported response type", func(r *client.AuthorizationRequest) { r.ResponseType = "id_token" }, serrors.UnsupportedResponseType, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)

			_, err := f.svc.ValidateAuthorizationRequest(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, oauthCode(t, err))

			var rerr *serrors.RedirectError
			assert.Equal(t, tt.wantRedirect, errors.As(err, &rerr))
		})
	}
}

func TestMatchRedirectURI(t *testing.T) {
	c := &domain.Client{RedirectURIs: []string{"https://app.example.com/callback", "com.example.app:/oauth"}}

	assert.True(t, client.MatchRedirectURI(c, "https://app.example.com/other/path?x=1"))
	assert.True(t, client.MatchRedirectURI(c, "com.example.app:/oauth"))
	assert.False(t, client.MatchRedirectURI(c, "http://app.example.com/callback"))
	assert.False(t, client.MatchRedirectURI(c, "https://app.example.com:8443/callback"))
	assert.False(t, client.MatchRedirectURI(c, "/callback"))
}

func TestService_RotateSecret(t *testing.T) {
	f := newFixture(t)
	c, old := f.register(t, webClient())

	fresh, err := f.svc.RotateSecret(context.Background(), c.ID)
	require.NoError(t, err)

	updated, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, f.svc.VerifySecret(updated, old))
	assert.True(t, f.svc.VerifySecret(updated, fresh))
}

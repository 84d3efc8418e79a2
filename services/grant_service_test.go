package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_ClientCredentials(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "*")

	resp, err := f.grants.Token(context.Background(), &TokenRequest{
		GrantType:   string(domain.GrantClientCredentials),
		Credentials: f.creds(c, secret),
		Scope:       "read write",
	})
	require.NoError(t, err)

	assert.Equal(t, "read write", resp.Scope)
	assert.Empty(t, resp.RefreshToken)
	assert.Equal(t, int64(86400), resp.ExpiresIn)

	claims, err := f.tokens.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, c.ID, claims.Subject)
}

func TestToken_GrantNotAllowedForPublicExternalClient(t *testing.T) {
	f := newFixture(t)
	c, _ := f.register(t, domain.ProfileNative, false, "read")

	_, err := f.grants.Token(context.Background(), &TokenRequest{
		GrantType:   string(domain.GrantClientCredentials),
		Credentials: client.Credentials{ClientID: c.ID},
	})
	requireOAuthError(t, err, serrors.UnauthorizedClient)
}

func TestToken_RevokedClient(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "")
	_, err := f.clients.Revoke(context.Background(), c.ID)
	require.NoError(t, err)

	creds := f.creds(c, secret)
	creds.Scheme = "Basic"
	_, err = f.grants.Token(context.Background(), &TokenRequest{
		GrantType:   string(domain.GrantClientCredentials),
		Credentials: creds,
	})
	oerr := requireOAuthError(t, err, serrors.InvalidClient)
	assert.Equal(t, http.StatusUnauthorized, oerr.Status())
	assert.Equal(t, "The client related to this request has been revoked.", oerr.Description)
}

func TestToken_ClientAuthentication(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "read")

	tests := []struct {
		name     string
		req      *TokenRequest
		wantCode string
	}{
		{
			name:     "missing client id",
			req:      &TokenRequest{GrantType: "client_credentials"},
			wantCode: serrors.InvalidRequest,
		},
		{
			name:     "unknown client",
			req:      &TokenRequest{GrantType: "client_credentials", Credentials: client.Credentials{ClientID: "nope", ClientSecret: "x"}},
			wantCode: serrors.InvalidClient,
		},
		{
			name:     "missing secret",
			req:      &TokenRequest{GrantType: "client_credentials", Credentials: client.Credentials{ClientID: c.ID}},
			wantCode: serrors.InvalidRequest,
		},
		{
			name:     "wrong secret",
			req:      &TokenRequest{GrantType: "client_credentials", Credentials: client.Credentials{ClientID: c.ID, ClientSecret: "wrong"}},
			wantCode: serrors.InvalidClient,
		},
		{
			name:     "scope beyond ceiling",
			req:      &TokenRequest{GrantType: "client_credentials", Credentials: f.creds(c, secret), Scope: "write"},
			wantCode: serrors.InvalidScope,
		},
		{
			name:     "unsupported grant",
			req:      &TokenRequest{GrantType: "urn:ietf:params:oauth:grant-type:device_code", Credentials: f.creds(c, secret)},
			wantCode: serrors.UnsupportedGrantType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.grants.Token(context.Background(), tt.req)
			requireOAuthError(t, err, tt.wantCode)
		})
	}
}

func TestToken_Password(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	confidential, secret := f.register(t, domain.ProfileWeb, true, "")
	resp := f.passwordTokens(t, confidential, secret, "read write")
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "read write", resp.Scope)

	public, _ := f.register(t, domain.ProfileNative, true, "")
	resp = f.passwordTokens(t, public, "", "")
	assert.Empty(t, resp.RefreshToken)
	assert.Equal(t, int64(7200), resp.ExpiresIn)

	// bob's own scope caps what he gets
	resp, err := f.grants.Token(ctx, &TokenRequest{
		GrantType:   string(domain.GrantPassword),
		Credentials: f.creds(confidential, secret),
		Username:    "bob",
		Password:    "builder",
		Scope:       "read write",
	})
	require.NoError(t, err)
	assert.Equal(t, "read", resp.Scope)

	_, err = f.grants.Token(ctx, &TokenRequest{
		GrantType:   string(domain.GrantPassword),
		Credentials: f.creds(confidential, secret),
		Username:    "alice",
		Password:    "wrong",
	})
	requireOAuthError(t, err, serrors.InvalidGrant)

	_, err = f.grants.Token(ctx, &TokenRequest{
		GrantType:   string(domain.GrantPassword),
		Credentials: f.creds(confidential, secret),
		Username:    "alice",
	})
	oerr := requireOAuthError(t, err, serrors.InvalidRequest)
	assert.Equal(t, "password required.", oerr.Description)
}

func TestToken_PasswordThrottled(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "")
	f.throttle.deny = true

	_, err := f.grants.Token(context.Background(), &TokenRequest{
		GrantType:   string(domain.GrantPassword),
		Credentials: f.creds(c, secret),
		Username:    "alice",
		Password:    "wonderland",
		RemoteAddr:  "10.0.0.1",
	})
	requireOAuthError(t, err, serrors.TemporarilyUnavailable)
}

func TestToken_RefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")

	first := f.passwordTokens(t, c, secret, "read")
	refreshReq := &TokenRequest{
		GrantType:    string(domain.GrantRefreshToken),
		Credentials:  f.creds(c, secret),
		RefreshToken: first.RefreshToken,
	}

	// the access token is still active
	_, err := f.grants.Token(ctx, refreshReq)
	oerr := requireOAuthError(t, err, serrors.InvalidGrant)
	assert.Contains(t, oerr.Description, "still active")

	f.clock.Advance(24*time.Hour + time.Second)

	second, err := f.grants.Token(ctx, refreshReq)
	require.NoError(t, err)
	assert.NotEmpty(t, second.RefreshToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, "read", second.Scope)

	claims, err := f.tokens.Verify(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-alice", claims.Subject)
	record, err := f.tokenRepo.GetAccessToken(ctx, claims.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantPassword, record.Grant)

	// replay
	_, err = f.grants.Token(ctx, refreshReq)
	oerr = requireOAuthError(t, err, serrors.InvalidGrant)
	assert.Equal(t, "The refresh token is revoked.", oerr.Description)
}

func TestToken_RefreshScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")

	first := f.passwordTokens(t, c, secret, "read")
	f.clock.Advance(24*time.Hour + time.Second)

	_, err := f.grants.Token(ctx, &TokenRequest{
		GrantType:    string(domain.GrantRefreshToken),
		Credentials:  f.creds(c, secret),
		RefreshToken: first.RefreshToken,
		Scope:        "write read",
	})
	oerr := requireOAuthError(t, err, serrors.InvalidScope)
	assert.Equal(t, "read is already in the previous access token scope.", oerr.Description)

	resp, err := f.grants.Token(ctx, &TokenRequest{
		GrantType:    string(domain.GrantRefreshToken),
		Credentials:  f.creds(c, secret),
		RefreshToken: first.RefreshToken,
		Scope:        "write",
	})
	require.NoError(t, err)
	assert.Equal(t, "read write", resp.Scope)
}

func TestToken_RefreshFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")
	other, otherSecret := f.register(t, domain.ProfileWeb, true, "")

	first := f.passwordTokens(t, c, secret, "")

	_, err := f.grants.Token(ctx, &TokenRequest{
		GrantType:   string(domain.GrantRefreshToken),
		Credentials: f.creds(c, secret),
	})
	requireOAuthError(t, err, serrors.InvalidRequest)

	_, err = f.grants.Token(ctx, &TokenRequest{
		GrantType:    string(domain.GrantRefreshToken),
		Credentials:  f.creds(c, secret),
		RefreshToken: "not-a-jwt",
	})
	requireOAuthError(t, err, serrors.InvalidGrant)

	// an access token is signed the same way but has no refresh record
	_, err = f.grants.Token(ctx, &TokenRequest{
		GrantType:    string(domain.GrantRefreshToken),
		Credentials:  f.creds(c, secret),
		RefreshToken: first.AccessToken,
	})
	oerr := requireOAuthError(t, err, serrors.InvalidGrant)
	assert.Equal(t, "Unknown refresh token.", oerr.Description)

	f.clock.Advance(24*time.Hour + time.Second)

	_, err = f.grants.Token(ctx, &TokenRequest{
		GrantType:    string(domain.GrantRefreshToken),
		Credentials:  f.creds(other, otherSecret),
		RefreshToken: first.RefreshToken,
	})
	oerr = requireOAuthError(t, err, serrors.InvalidGrant)
	assert.Equal(t, "Invalid refresh token. client_id does not match.", oerr.Description)

	f.clock.Advance(360 * 24 * time.Hour)

	_, err = f.grants.Token(ctx, &TokenRequest{
		GrantType:    string(domain.GrantRefreshToken),
		Credentials:  f.creds(c, secret),
		RefreshToken: first.RefreshToken,
	})
	oerr = requireOAuthError(t, err, serrors.InvalidGrant)
	assert.Equal(t, "The refresh token is expired.", oerr.Description)
}

type failingGrant struct{}

func (failingGrant) GrantType() domain.GrantType { return domain.GrantClientCredentials }

func (failingGrant) Handle(context.Context, *domain.Client, *TokenRequest) (*IssuedTokens, error) {
	return nil, errors.New("connection reset by peer")
}

func TestToken_UnexpectedErrorIsServerError(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "")

	grants := NewGrantService(f.clients, failingGrant{})
	_, err := grants.Token(context.Background(), &TokenRequest{
		GrantType:   string(domain.GrantClientCredentials),
		Credentials: f.creds(c, secret),
	})

	oerr := requireOAuthError(t, err, serrors.ServerError)
	assert.Equal(t, serrors.ServerErrorDescription, oerr.Description)
	assert.NotContains(t, oerr.Description, "connection reset")
}

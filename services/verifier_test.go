package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(f *fixture, lookup ClaimsLookup) *Verifier {
	v := NewVerifier(f.tokens, lookup)
	v.now = f.clock.Now

	return v
}

func TestVerifier_Verify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")

	var looked []string
	v := newVerifier(f, func(_ context.Context, sub string) (map[string]any, error) {
		looked = append(looked, sub)
		return map[string]any{"email": "alice@example.com"}, nil
	})

	resp := f.passwordTokens(t, c, secret, "read write")

	result := v.Verify(ctx, resp.AccessToken, VerifyOptions{Scope: "read"})
	require.True(t, result.OK(), result.Err)
	assert.Equal(t, "user-alice", result.Subject)
	assert.Equal(t, c.ID, result.ClientID)
	assert.Equal(t, domain.GrantPassword, result.Grant)
	assert.Equal(t, "alice@example.com", result.Claims["email"])
	assert.Equal(t, []string{"user-alice"}, looked)

	result = v.Verify(ctx, resp.AccessToken, VerifyOptions{Scope: "read profile"})
	require.False(t, result.OK())
	assert.Equal(t, serrors.InsufficientScope, result.Err.Code)
	assert.Equal(t, "read profile", result.Err.Scope)

	result = v.Verify(ctx, resp.AccessToken, VerifyOptions{Grants: []domain.GrantType{domain.GrantAuthorizationCode}})
	require.False(t, result.OK())
	assert.Equal(t, serrors.AccessDenied, result.Err.Code)
	assert.Equal(t, `Only "authorization_code" grant is allowed`, result.Err.Description)

	f.clock.Advance(24*time.Hour + time.Second)
	result = v.Verify(ctx, resp.AccessToken, VerifyOptions{})
	require.False(t, result.OK())
	assert.Equal(t, ErrDescTokenExpired, result.Err.Description)
}

func TestVerifier_WildcardScopeCoversAll(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "*")

	resp, err := f.grants.Token(context.Background(), &TokenRequest{
		GrantType:   string(domain.GrantClientCredentials),
		Credentials: f.creds(c, secret),
	})
	require.NoError(t, err)

	lookup := func(context.Context, string) (map[string]any, error) {
		t.Fatal("client credentials tokens have no subject profile")
		return nil, nil
	}

	result := newVerifier(f, lookup).Verify(context.Background(), resp.AccessToken, VerifyOptions{Scope: "write profile"})
	require.True(t, result.OK(), result.Err)
	assert.Nil(t, result.Claims)
}

func TestVerifier_InvalidTokens(t *testing.T) {
	f := newFixture(t)
	v := newVerifier(f, nil)

	result := v.Verify(context.Background(), "garbage", VerifyOptions{})
	require.False(t, result.OK())
	assert.Equal(t, serrors.InvalidToken, result.Err.Code)
	assert.Equal(t, ErrDescInvalidToken, result.Err.Description)

	// correctly signed but never issued
	signed, err := f.signer.Sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{ID: "unknown-jti"}})
	require.NoError(t, err)

	result = v.Verify(context.Background(), signed, VerifyOptions{})
	require.False(t, result.OK())
	assert.Equal(t, ErrDescInvalidToken, result.Err.Description)
}

func TestVerifier_UnknownSubject(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "")
	resp := f.passwordTokens(t, c, secret, "read")

	v := newVerifier(f, func(context.Context, string) (map[string]any, error) {
		return nil, domain.ErrNotFound
	})

	result := v.Verify(context.Background(), resp.AccessToken, VerifyOptions{})
	require.False(t, result.OK())
	assert.Equal(t, serrors.InvalidToken, result.Err.Code)
	assert.Equal(t, ErrDescInvalidToken, result.Err.Description)

	v = newVerifier(f, func(context.Context, string) (map[string]any, error) {
		return nil, errors.New("directory offline")
	})

	result = v.Verify(context.Background(), resp.AccessToken, VerifyOptions{})
	require.False(t, result.OK())
	assert.Equal(t, serrors.ServerError, result.Err.Code)
}

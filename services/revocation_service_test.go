package services

import (
	"context"
	"testing"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevoke_AccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")
	verifier := NewVerifier(f.tokens, nil)
	verifier.now = f.clock.Now

	resp := f.passwordTokens(t, c, secret, "read")
	require.True(t, verifier.Verify(ctx, resp.AccessToken, VerifyOptions{}).OK())

	require.NoError(t, f.revocation.Revoke(ctx, f.creds(c, secret), resp.AccessToken, ""))

	result := verifier.Verify(ctx, resp.AccessToken, VerifyOptions{})
	require.False(t, result.OK())
	assert.Equal(t, ErrDescTokenNotApproved, result.Err.Description)

	// idempotent
	assert.NoError(t, f.revocation.Revoke(ctx, f.creds(c, secret), resp.AccessToken, ""))
}

func TestRevoke_RefreshTokenWithoutHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")

	resp := f.passwordTokens(t, c, secret, "")
	require.NoError(t, f.revocation.Revoke(ctx, f.creds(c, secret), resp.RefreshToken, ""))

	claims, err := f.tokens.Verify(resp.RefreshToken)
	require.NoError(t, err)
	refresh, err := f.tokenRepo.GetRefreshToken(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, refresh.IsRevoked())

	access, err := f.tokenRepo.GetAccessToken(ctx, refresh.AccessTokenID)
	require.NoError(t, err)
	assert.False(t, access.IsRevoked())
}

func TestRevoke_RefreshTokenHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")

	resp := f.passwordTokens(t, c, secret, "")
	// a wrong hint still finds the token
	require.NoError(t, f.revocation.Revoke(ctx, f.creds(c, secret), resp.AccessToken, TokenTypeHintRefreshToken))

	claims, err := f.tokens.Verify(resp.AccessToken)
	require.NoError(t, err)
	access, err := f.tokenRepo.GetAccessToken(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, access.IsRevoked())
}

func TestRevoke_UnknownTokenIsNotAnError(t *testing.T) {
	f := newFixture(t)
	c, secret := f.register(t, domain.ProfileWeb, true, "")

	assert.NoError(t, f.revocation.Revoke(context.Background(), f.creds(c, secret), "garbage", ""))
}

func TestRevoke_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, secret := f.register(t, domain.ProfileWeb, true, "")
	other, otherSecret := f.register(t, domain.ProfileWeb, true, "")

	resp := f.passwordTokens(t, c, secret, "")

	err := f.revocation.Revoke(ctx, f.creds(other, otherSecret), resp.AccessToken, "")
	requireOAuthError(t, err, serrors.UnauthorizedClient)

	err = f.revocation.Revoke(ctx, client.Credentials{ClientID: c.ID, ClientSecret: "wrong"}, resp.AccessToken, "")
	requireOAuthError(t, err, serrors.InvalidClient)

	err = f.revocation.Revoke(ctx, f.creds(c, secret), "", "")
	requireOAuthError(t, err, serrors.InvalidRequest)
}

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

func TestPersonalToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	personal, secret, err := f.clients.Register(ctx, client.Registration{
		Name:         "CLI",
		Domain:       "https://cli.example.com",
		Profile:      domain.ProfileWeb,
		RedirectURIs: []string{redirectURI},
		Internal:     true,
		Personal:     true,
	})
	require.NoError(t, err)

	issued, err := f.personal.Issue(ctx, PersonalTokenRequest{
		ClientID:     personal.ID,
		ClientSecret: secret,
		Subject:      "user-1",
		Scope:        "read",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.RefreshToken)
	assert.Equal(t, domain.GrantPassword, issued.Access.Grant)

	_, err = f.personal.Issue(ctx, PersonalTokenRequest{ClientID: personal.ID, ClientSecret: "wrong", Subject: "user-1"})
	requireOAuthError(t, err, serrors.InvalidClient)

	regular, regularSecret := f.register(t, domain.ProfileWeb, true, "")
	_, err = f.personal.Issue(ctx, PersonalTokenRequest{ClientID: regular.ID, ClientSecret: regularSecret, Subject: "user-1"})
	requireOAuthError(t, err, serrors.UnauthorizedClient)

	// personal clients are barred from the token endpoint
	_, err = f.grants.Token(ctx, &TokenRequest{
		GrantType:   string(domain.GrantClientCredentials),
		Credentials: f.creds(personal, secret),
	})
	requireOAuthError(t, err, serrors.UnauthorizedClient)
}

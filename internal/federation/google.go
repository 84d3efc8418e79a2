package federation

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var GoogleUserInfoEndpoint = "https://openidconnect.googleapis.com/v1/userinfo"

// NewGoogleStrategy configures a Google login with PKCE. openid, email and
// profile are always requested.
func NewGoogleStrategy(id, clientID, clientSecret, redirectURL string, scopes []string, lookup UserLookupFunc) *Strategy {
	return &Strategy{
		ID:           id,
		ProviderName: "Google",
		Grant:        GrantAuthorizationCodePKCE,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       withScopes(scopes, "openid", "email", "profile"),
			Endpoint:     endpoints.Google,
		},
		Lookup: lookup,
	}
}

// FetchGoogleProfile loads the OpenID Connect userinfo. Unverified emails
// are dropped.
func FetchGoogleProfile(ctx context.Context, client *http.Client) (*Profile, error) {
	var info struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}

	body, err := getJSON(ctx, client, GoogleUserInfoEndpoint, "google", &info)
	if err != nil {
		return nil, err
	}

	profile := &Profile{
		ID:         info.Sub,
		FirstName:  info.GivenName,
		LastName:   info.FamilyName,
		Username:   info.Email,
		PictureURL: info.Picture,
		Raw:        rawObject(body),
	}
	if info.EmailVerified {
		profile.Email = info.Email
	}
	if profile.FirstName == "" && profile.LastName == "" {
		profile.FirstName, profile.LastName = splitName(info.Name)
	}

	return profile, nil
}

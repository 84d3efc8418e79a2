package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"golang.org/x/oauth2"
	githubOAuth2 "golang.org/x/oauth2/github"
)

var (
	GithubUserInfoEndpoint   = "https://api.github.com/user"
	GithubUserEmailsEndpoint = "https://api.github.com/user/emails"
)

// NewGitHubStrategy configures a GitHub login. read:user and user:email are
// always requested.
func NewGitHubStrategy(id, clientID, clientSecret, redirectURL string, scopes []string, lookup UserLookupFunc) *Strategy {
	return &Strategy{
		ID:           id,
		ProviderName: "GitHub",
		Grant:        GrantAuthorizationCode,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       withScopes(scopes, "read:user", "user:email"),
			Endpoint:     githubOAuth2.Endpoint,
		},
		Lookup: lookup,
	}
}

// FetchGitHubProfile loads the GitHub user and its primary verified email.
func FetchGitHubProfile(ctx context.Context, client *http.Client) (*Profile, error) {
	var user struct {
		ID        json.Number `json:"id"`
		Login     string      `json:"login"`
		Name      string      `json:"name"`
		Email     string      `json:"email"`
		AvatarURL string      `json:"avatar_url"`
	}

	body, err := getJSON(ctx, client, GithubUserInfoEndpoint, "github", &user)
	if err != nil {
		return nil, err
	}

	firstName, lastName := splitName(user.Name)
	if user.Name == "" {
		firstName = user.Login
	}

	profile := &Profile{
		ID:         user.ID.String(),
		Email:      user.Email,
		FirstName:  firstName,
		LastName:   lastName,
		Username:   user.Login,
		PictureURL: user.AvatarURL,
		Raw:        rawObject(body),
	}

	// The public email may be hidden; the emails endpoint needs user:email.
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if _, err := getJSON(ctx, client, GithubUserEmailsEndpoint, "github", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email = e.Email
				break
			}
		}
	}

	return profile, nil
}

func withScopes(scopes []string, required ...string) []string {
	out := slices.Clone(scopes)
	for _, s := range required {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}

	return out
}

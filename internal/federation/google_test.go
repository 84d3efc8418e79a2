package federation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pilab-dev/shadow-oauth/internal/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchGoogleProfile(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEmail string
		wantFirst string
		wantLast  string
	}{
		{
			name:      "verified email",
			body:      `{"sub":"g-1","given_name":"Alice","family_name":"Liddell","email":"alice@example.com","email_verified":true}`,
			wantEmail: "alice@example.com",
			wantFirst: "Alice",
			wantLast:  "Liddell",
		},
		{
			name:      "unverified email is dropped",
			body:      `{"sub":"g-1","name":"Alice Liddell","email":"alice@example.com","email_verified":false}`,
			wantFirst: "Alice",
			wantLast:  "Liddell",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			stubEndpoint(t, &federation.GoogleUserInfoEndpoint, server.URL)

			profile, err := federation.FetchGoogleProfile(context.Background(), server.Client())
			require.NoError(t, err)
			assert.Equal(t, "g-1", profile.ID)
			assert.Equal(t, tt.wantEmail, profile.Email)
			assert.Equal(t, tt.wantFirst, profile.FirstName)
			assert.Equal(t, tt.wantLast, profile.LastName)
		})
	}
}

func TestNewGoogleStrategy(t *testing.T) {
	s := federation.NewGoogleStrategy("google", "g-id", "g-secret", "https://auth.example.com/cb/google", nil, nil)

	assert.Equal(t, federation.GrantAuthorizationCodePKCE, s.Grant)
	assert.Equal(t, []string{"openid", "email", "profile"}, s.Config.Scopes)
	assert.Equal(t, "https://accounts.google.com/o/oauth2/auth", s.Config.Endpoint.AuthURL)

	// a strategy without lookup cannot be used
	_, err := federation.NewBridge(s)
	assert.ErrorIs(t, err, federation.ErrStrategyMisconfigured)
}

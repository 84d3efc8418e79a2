// Package middleware guards echo routes of a protected resource with bearer
// tokens issued by this server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-oauth/services"
)

// resultContextKey is the echo context key of the accepted *services.VerifyResult.
const resultContextKey = "_oauth_verify_result"

// TokenVerifier checks bearer tokens. *services.Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, bearer string, opts services.VerifyOptions) *services.VerifyResult
}

var _ TokenVerifier = (*services.Verifier)(nil)

// Authenticator builds route guards around a TokenVerifier.
type Authenticator struct {
	verifier TokenVerifier
	realm    string
}

// NewAuthenticator creates an Authenticator. realm is reported in the
// WWW-Authenticate challenge.
func NewAuthenticator(v TokenVerifier, realm string) *Authenticator {
	if realm == "" {
		realm = "api"
	}

	return &Authenticator{verifier: v, realm: realm}
}

// BearerToken extracts the bearer token from the Authorization header or,
// failing that, the access_token query parameter. The second return value
// is false when the request carries no token at all.
func BearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get(echo.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", true
		}
		return strings.TrimSpace(token), true
	}

	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}

	return "", false
}

// FromContext returns the verification result stored by Authorize or
// OptionalAuthorize.
func FromContext(c echo.Context) (*services.VerifyResult, bool) {
	result, ok := c.Get(resultContextKey).(*services.VerifyResult)
	return result, ok && result != nil
}

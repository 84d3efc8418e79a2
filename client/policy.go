package client

import (
	"context"
	"net/url"
	"strings"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// Credentials are the client credentials presented on a request. Scheme is
// the HTTP auth scheme they arrived with, if any.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Scheme       string
}

// AuthOptions tune Authenticate for the calling endpoint.
type AuthOptions struct {
	// Scope is the requested scope, checked against the client's ceiling.
	Scope string
	// AllowPersonal admits personal clients (revocation endpoint).
	AllowPersonal bool
}

// Authenticate loads the client named by creds and applies the token
// endpoint checks in order: presence of client_id, existence, personal
// clients, revocation, scope ceiling, presence and validity of the secret.
func (s *Service) Authenticate(ctx context.Context, creds Credentials, opts AuthOptions) (*domain.Client, error) {
	if creds.ClientID == "" {
		return nil, serrors.NewInvalidRequest(
			"The client_id is required. You can send it with client_secret in body or via Basic Auth header.")
	}

	c, err := s.clients.GetClient(ctx, creds.ClientID)
	if err != nil {
		return nil, lookupFailure(err, serrors.NewInvalidClient("Unknown client"))
	}

	if c.Personal && !opts.AllowPersonal {
		return nil, serrors.NewUnauthorizedClient("Personal client are not allowed")
	}
	if c.IsRevoked() {
		return nil, serrors.NewInvalidClient("The client related to this request has been revoked.")
	}
	if opts.Scope != "" && !scope.Validate(c.Scope, opts.Scope) {
		return nil, serrors.NewInvalidScope(
			"The requested scope is invalid, unknown, malformed, or exceeds the scope granted.")
	}
	if c.IsConfidential() && creds.ClientSecret == "" {
		return nil, serrors.NewInvalidRequest(
			"The client_secret is required for confidential client. You can send it with client_id in body or via Basic Auth header.")
	}
	if creds.ClientSecret != "" && !s.VerifySecret(c, creds.ClientSecret) {
		return nil, serrors.NewInvalidClient("Invalid client secret.")
	}

	return c, nil
}

// CheckGrant returns unauthorized_client unless the client may use grant.
func CheckGrant(c *domain.Client, grant domain.GrantType) error {
	if !c.AllowsGrant(grant) {
		return grantNotAllowed(grant)
	}

	return nil
}

func grantNotAllowed(grant domain.GrantType) *serrors.OAuth2Error {
	return serrors.NewUnauthorizedClient(string(grant) + " authorization grant type is not allowed for this client.")
}

// AuthorizationRequest is a parsed request to the authorization endpoint.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserAgent           string
}

// ValidateAuthorizationRequest checks an authorization request and returns
// the client it names. Failures detected after the redirect URI was matched
// against the client are returned as *serrors.RedirectError.
func (s *Service) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*domain.Client, error) {
	var missing []string
	if req.ResponseType == "" {
		missing = append(missing, "response_type")
	}
	if req.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	if req.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if len(missing) > 0 {
		verb := "is required"
		if len(missing) > 1 {
			verb = "are required"
		}
		return nil, serrors.NewInvalidRequest(strings.Join(missing, ", ") + " " + verb).WithState(req.State)
	}

	if req.CodeChallengeMethod != "" &&
		req.CodeChallengeMethod != domain.ChallengeMethodPlain &&
		req.CodeChallengeMethod != domain.ChallengeMethodS256 {
		return nil, serrors.NewInvalidRequest(`The code challenge method must be "plain" or "S256"`).WithState(req.State)
	}

	c, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, lookupFailure(err, serrors.NewInvalidRequest("Unknown client").WithState(req.State))
	}
	if c.Personal {
		return nil, serrors.NewUnauthorizedClient("Personal client are not allowed")
	}
	if !MatchRedirectURI(c, req.RedirectURI) {
		return nil, serrors.NewInvalidRequest("Given redirect uri is not in the client redirect URIs").WithState(req.State)
	}

	// From here on the redirect URI is trusted.
	if c.IsRevoked() {
		return nil, serrors.NewRedirectError(
			serrors.NewAccessDenied("The client related to this request has been revoked.").WithState(req.State),
			req.RedirectURI)
	}
	if req.Scope != "" && !scope.Validate(c.Scope, req.Scope) {
		return nil, serrors.NewRedirectError(
			serrors.NewInvalidScope("The request scope must be in client scopes.").WithState(req.State),
			req.RedirectURI)
	}
	if req.ResponseType != string(domain.ResponseTypeCode) && req.ResponseType != string(domain.ResponseTypeToken) {
		return nil, serrors.NewRedirectError(
			serrors.NewUnsupportedResponseType().WithState(req.State),
			req.RedirectURI)
	}

	grant := domain.GrantAuthorizationCode
	if req.ResponseType == string(domain.ResponseTypeToken) {
		grant = domain.GrantImplicit
	}
	if !c.AllowsGrant(grant) {
		return nil, serrors.NewRedirectError(grantNotAllowed(grant).WithState(req.State), req.RedirectURI)
	}

	return c, nil
}

// MatchRedirectURI reports whether uri shares scheme and host with one of
// the client's registered redirect URIs.
func MatchRedirectURI(c *domain.Client, uri string) bool {
	requested, err := url.Parse(uri)
	if err != nil || requested.Scheme == "" {
		return false
	}

	for _, registered := range c.RedirectURIs {
		u, err := url.Parse(registered)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Scheme, requested.Scheme) && strings.EqualFold(u.Host, requested.Host) {
			return true
		}
	}

	return false
}

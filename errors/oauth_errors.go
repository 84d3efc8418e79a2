package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`

	// Scope is reported on insufficient_scope challenges only.
	Scope string `json:"-"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes
const (
	InvalidRequest          = "invalid_request"
	UnauthorizedClient      = "unauthorized_client"
	AccessDenied            = "access_denied"
	UnsupportedResponseType = "unsupported_response_type"
	UnsupportedGrantType    = "unsupported_grant_type"
	InvalidScope            = "invalid_scope"
	InvalidClient           = "invalid_client"
	InvalidGrant            = "invalid_grant"
	ServerError             = "server_error"
	TemporarilyUnavailable  = "temporarily_unavailable"

	// Bearer token usage (RFC 6750)
	InvalidToken      = "invalid_token"
	InsufficientScope = "insufficient_scope"
)

// ServerErrorDescription is the only description a client ever sees for an
// unexpected failure.
const ServerErrorDescription = "The authorization server encountered an unexpected condition that prevented it from fulfilling the request."

// Status returns the HTTP status code the error is delivered with.
func (e *OAuth2Error) Status() int {
	switch e.Code {
	case InvalidClient, InvalidToken:
		return http.StatusUnauthorized
	case InsufficientScope, AccessDenied:
		return http.StatusForbidden
	case ServerError:
		return http.StatusInternalServerError
	case TemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// WithState returns a copy of the error carrying the client's state value.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	cp := *e
	cp.State = state

	return &cp
}

// Challenge renders the value of a WWW-Authenticate (or Proxy-Authenticate)
// header for the error.
func (e *OAuth2Error) Challenge(scheme, realm string) string {
	if scheme == "" {
		scheme = "Bearer"
	}

	parts := []string{fmt.Sprintf("realm=%q", realm)}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("error=%q", e.Code))
	}
	if e.Description != "" {
		parts = append(parts, fmt.Sprintf("error_description=%q", e.Description))
	}
	if e.Scope != "" {
		parts = append(parts, fmt.Sprintf("scope=%q", e.Scope))
	}

	return scheme + " " + strings.Join(parts, ", ")
}

// AsOAuth2Error extracts an OAuth2Error from the error chain. Anything else is
// reported as a generic server_error; the second return value tells whether
// err was an OAuth2Error to begin with.
func AsOAuth2Error(err error) (*OAuth2Error, bool) {
	var oerr *OAuth2Error
	if stderrors.As(err, &oerr) {
		return oerr, true
	}

	return NewServerError(ServerErrorDescription), false
}

// Common error constructors
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
	}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: description,
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
	}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        AccessDenied,
		Description: description,
	}
}

// PKCE specific errors
func NewPKCERequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: "Missing parameter: code_verifier",
	}
}

func NewInvalidPKCE(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: fmt.Sprintf("PKCE validation failed: %s", description),
	}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidScope,
		Description: description,
	}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        UnauthorizedClient,
		Description: description,
	}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewUnsupportedResponseType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedResponseType,
		Description: "The authorization server does not support obtaining an authorization code using this method.",
	}
}

func NewInvalidToken(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidToken,
		Description: description,
	}
}

func NewInsufficientScope(required string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InsufficientScope,
		Description: "Insufficient scope",
		Scope:       required,
	}
}

// RedirectError is an OAuth2Error that must be delivered to the client's
// redirect URI instead of the user agent. It is only produced once the
// redirect URI has been checked against the client registration.
type RedirectError struct {
	Err         *OAuth2Error
	RedirectURI string
}

// NewRedirectError wraps err for delivery to redirectURI.
func NewRedirectError(err *OAuth2Error, redirectURI string) *RedirectError {
	return &RedirectError{Err: err, RedirectURI: redirectURI}
}

func (e *RedirectError) Error() string { return e.Err.Error() }
func (e *RedirectError) Unwrap() error { return e.Err }

// Location renders the redirect URI with the error parameters added to its
// query.
func (e *RedirectError) Location() string {
	u, err := url.Parse(e.RedirectURI)
	if err != nil {
		return e.RedirectURI
	}

	q := u.Query()
	q.Set("error", e.Err.Code)
	if e.Err.Description != "" {
		q.Set("error_description", e.Err.Description)
	}
	if e.Err.URI != "" {
		q.Set("error_uri", e.Err.URI)
	}
	if e.Err.State != "" {
		q.Set("state", e.Err.State)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

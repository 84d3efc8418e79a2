package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/scope"
	"github.com/rs/zerolog/log"
)

const authCodeBytes = 48

// AuthorizationResult is the outcome of a finished authorization request.
type AuthorizationResult struct {
	// Location is the client redirect URI carrying the response.
	Location string
	Code     *domain.AuthCode
	// Tokens is set for implicit (response_type=token) requests.
	Tokens *IssuedTokens
}

// AuthorizationService drives authorization requests from creation to code
// exchange.
type AuthorizationService struct {
	octx    domain.OAuthContext
	clients *client.Service
	codes   domain.AuthCodeRepository
	tokens  *TokenService
	now     func() time.Time
}

func NewAuthorizationService(
	octx domain.OAuthContext,
	clients *client.Service,
	codes domain.AuthCodeRepository,
	tokens *TokenService,
) *AuthorizationService {
	return &AuthorizationService{
		octx:    octx,
		clients: clients,
		codes:   codes,
		tokens:  tokens,
		now:     time.Now,
	}
}

// Start validates an authorization request and records it.
func (s *AuthorizationService) Start(ctx context.Context, req *client.AuthorizationRequest) (*domain.AuthCode, error) {
	c, err := s.clients.ValidateAuthorizationRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = domain.ChallengeMethodPlain
	}

	now := s.now().UTC()
	code := &domain.AuthCode{
		ID:                  uuid.NewString(),
		ClientID:            c.ID,
		Scope:               scope.Normalize(req.Scope),
		ResponseType:        domain.ResponseType(req.ResponseType),
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		UserAgent:           req.UserAgent,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(s.octx.AuthorizationCodeLifetime),
		CreatedAt:           now,
	}

	if err := s.codes.CreateAuthCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store authorization request: %w", err)
	}

	log.Debug().Str("client_id", c.ID).Str("auth_code_id", code.ID).
		Str("response_type", req.ResponseType).Msg("authorization request started")

	return code, nil
}

// Get returns the authorization request with the given id.
func (s *AuthorizationService) Get(ctx context.Context, codeID string) (*domain.AuthCode, error) {
	return s.codes.GetAuthCode(ctx, codeID)
}

// Complete binds an authenticated subject to the authorization request.
// For response_type=code it issues the authorization code; for
// response_type=token it issues an access token and consumes the request.
func (s *AuthorizationService) Complete(ctx context.Context, codeID string, subject *domain.Subject) (*AuthorizationResult, error) {
	code, err := s.pending(ctx, codeID)
	if err != nil {
		return nil, err
	}

	c, err := s.clients.Get(ctx, code.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load client %s: %w", code.ClientID, err)
	}
	if c.IsRevoked() {
		return nil, redirectError(code,
			serrors.NewAccessDenied("The client related to this request has been revoked."))
	}

	now := s.now().UTC()
	granted := scope.Merge(subject.Scope, code.Scope, c.Scope)
	binding := domain.AuthCodeBinding{UserID: subject.ID, Scope: granted, BoundAt: now}

	switch code.ResponseType {
	case domain.ResponseTypeCode:
		binding.Code, err = randomToken(authCodeBytes)
		if err != nil {
			return nil, err
		}
		if err := s.bind(ctx, code, binding); err != nil {
			return nil, err
		}

		metrics.AuthCodesIssuedTotal.Inc()

		return &AuthorizationResult{
			Location: withParams(code.RedirectURI, false, map[string]string{
				"code":  binding.Code,
				"state": code.State,
			}),
			Code: code,
		}, nil

	case domain.ResponseTypeToken:
		if err := s.bind(ctx, code, binding); err != nil {
			return nil, err
		}

		issued, err := s.tokens.Issue(ctx, IssueOptions{
			Client:    c,
			Grant:     domain.GrantImplicit,
			Subject:   subject.ID,
			Scope:     granted,
			UserAgent: code.UserAgent,
		})
		if err != nil {
			var oerr *serrors.OAuth2Error
			if errors.As(err, &oerr) {
				return nil, redirectError(code, oerr)
			}
			return nil, err
		}

		if err := s.codes.MarkAuthCodeExchanged(ctx, code.ID, now); err != nil {
			return nil, fmt.Errorf("failed to consume authorization request: %w", err)
		}

		return &AuthorizationResult{
			Location: withParams(code.RedirectURI, true, map[string]string{
				"access_token": issued.AccessToken,
				"token_type":   issued.TokenType,
				"expires_in":   strconv.FormatInt(issued.ExpiresIn, 10),
				"scope":        issued.Scope,
				"state":        code.State,
			}),
			Code:   code,
			Tokens: issued,
		}, nil
	}

	return nil, redirectError(code, serrors.NewUnsupportedResponseType())
}

// Deny revokes the authorization request after the end-user refused it and
// returns the access_denied redirect for the client.
func (s *AuthorizationService) Deny(ctx context.Context, codeID string) (*AuthorizationResult, error) {
	code, err := s.pending(ctx, codeID)
	if err != nil {
		return nil, err
	}

	if err := s.codes.RevokeAuthCode(ctx, code.ID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to revoke authorization request: %w", err)
	}

	rerr := redirectError(code, serrors.NewAccessDenied("The resource owner denied the request."))

	return &AuthorizationResult{Location: rerr.Location(), Code: code}, nil
}

// Exchange consumes an authorization code presented by c at the token
// endpoint. The code is marked exchanged atomically so only one of several
// concurrent exchanges succeeds.
func (s *AuthorizationService) Exchange(ctx context.Context, c *domain.Client, code, redirectURI, verifier string) (*domain.AuthCode, error) {
	rec, err := s.codes.GetAuthCodeByCode(ctx, c.ID, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("The authorization code is not valid.")
		}
		return nil, fmt.Errorf("failed to load authorization code: %w", err)
	}

	now := s.now().UTC()
	switch rec.Status(now) {
	case domain.AuthCodeExchanged:
		s.replayed(rec)
		return nil, serrors.NewInvalidGrant("The authorization code is not valid.")
	case domain.AuthCodeRevoked:
		return nil, serrors.NewInvalidGrant("The authorization code has been revoked. Try to get another one.")
	case domain.AuthCodeExpired:
		return nil, serrors.NewInvalidGrant("The authorization code has been expired. Try to get another one.")
	}

	if rec.ResponseType != domain.ResponseTypeCode {
		return nil, serrors.NewInvalidGrant("The authorization code is not valid.")
	}
	if rec.RedirectURI != redirectURI {
		return nil, serrors.NewInvalidGrant(
			"The redirect_uri parameter must be identical to the one included in the authorization request.")
	}

	if rec.CodeChallenge != "" {
		if verifier == "" {
			return nil, serrors.NewPKCERequired()
		}
		if !ValidatePKCEChallenge(rec.CodeChallenge, rec.CodeChallengeMethod, verifier) {
			if rec.CodeChallengeMethod == domain.ChallengeMethodS256 {
				return nil, serrors.NewInvalidPKCE("Hashed code verifier and code challenge are not identical.")
			}
			return nil, serrors.NewInvalidPKCE("Code verifier and code challenge are not identical.")
		}
	}

	if err := s.codes.MarkAuthCodeExchanged(ctx, rec.ID, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.replayed(rec)
			return nil, serrors.NewInvalidGrant("The authorization code is not valid.")
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	rec.ExchangedAt = &now
	metrics.AuthCodesExchangedTotal.Inc()

	return rec, nil
}

// Revoke revokes an authorization request in any state.
func (s *AuthorizationService) Revoke(ctx context.Context, codeID string) error {
	return s.codes.RevokeAuthCode(ctx, codeID, s.now().UTC())
}

// pending loads an authorization request that still waits for the
// end-user.
func (s *AuthorizationService) pending(ctx context.Context, codeID string) (*domain.AuthCode, error) {
	code, err := s.codes.GetAuthCode(ctx, codeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidRequest("Unknown authorization request.")
		}
		return nil, fmt.Errorf("failed to load authorization request: %w", err)
	}

	switch code.Status(s.now()) {
	case domain.AuthCodeCreated:
		return code, nil
	case domain.AuthCodeExpired:
		return nil, redirectError(code, serrors.NewInvalidRequest("The authorization request has expired."))
	default:
		return nil, redirectError(code, serrors.NewInvalidRequest("The authorization request has already been completed."))
	}
}

func (s *AuthorizationService) bind(ctx context.Context, code *domain.AuthCode, binding domain.AuthCodeBinding) error {
	if err := s.codes.BindAuthCode(ctx, code.ID, binding); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return redirectError(code, serrors.NewInvalidRequest("The authorization request has already been completed."))
		}
		return fmt.Errorf("failed to bind authorization request: %w", err)
	}

	code.UserID = binding.UserID
	code.Scope = binding.Scope
	code.Code = binding.Code
	code.BoundAt = &binding.BoundAt

	return nil
}

func (s *AuthorizationService) replayed(rec *domain.AuthCode) {
	log.Warn().Str("client_id", rec.ClientID).Str("auth_code_id", rec.ID).Msg("authorization code replay")
	audit.Log(audit.Event{
		Action:   audit.ActionCodeReplay,
		ClientID: rec.ClientID,
		Subject:  rec.UserID,
		Target:   rec.ID,
	})
}

func redirectError(code *domain.AuthCode, err *serrors.OAuth2Error) *serrors.RedirectError {
	return serrors.NewRedirectError(err.WithState(code.State), code.RedirectURI)
}

// withParams adds non-empty params to the query, or to the fragment when
// fragment is set.
func withParams(redirectURI string, fragment bool, params map[string]string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}

	values := u.Query()
	if fragment {
		values = url.Values{}
	}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}

	if fragment {
		u.Fragment, u.RawFragment = "", ""
		return u.String() + "#" + values.Encode()
	}
	u.RawQuery = values.Encode()

	return u.String()
}

// randomToken returns n random bytes, base64url encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

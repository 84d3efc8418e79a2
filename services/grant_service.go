package services

import (
	"context"
	"errors"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pilab-dev/shadow-oauth/services"

// Authenticator verifies end-user credentials. It returns a nil subject when
// the credentials are wrong.
type Authenticator func(ctx context.Context, username, password string) (*domain.Subject, error)

// ClaimsLookup resolves the profile claims of a subject. It returns nil when
// the subject is unknown.
type ClaimsLookup func(ctx context.Context, subjectID string) (map[string]any, error)

// Throttle limits attempts per identifier.
type Throttle interface {
	Allow(identifier string) bool
}

// TokenRequest is a parsed token endpoint request.
type TokenRequest struct {
	GrantType    string
	Credentials  client.Credentials
	Scope        string
	Code         string
	RedirectURI  string
	CodeVerifier string
	Username     string
	Password     string
	RefreshToken string
	UserAgent    string
	RemoteAddr   string
}

// TokenResponse is the successful token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// NewTokenResponse renders issued tokens for the token endpoint.
func NewTokenResponse(issued *IssuedTokens) *TokenResponse {
	return &TokenResponse{
		AccessToken:  issued.AccessToken,
		TokenType:    issued.TokenType,
		ExpiresIn:    issued.ExpiresIn,
		RefreshToken: issued.RefreshToken,
		Scope:        issued.Scope,
	}
}

// GrantHandler issues tokens for one grant type. The client has already been
// authenticated when Handle is called.
type GrantHandler interface {
	GrantType() domain.GrantType
	Handle(ctx context.Context, c *domain.Client, req *TokenRequest) (*IssuedTokens, error)
}

// GrantService is the token endpoint: it authenticates the client and
// dispatches the request to the handler of its grant type.
type GrantService struct {
	clients  *client.Service
	handlers map[domain.GrantType]GrantHandler
	tracer   trace.Tracer
}

func NewGrantService(clients *client.Service, handlers ...GrantHandler) *GrantService {
	s := &GrantService{
		clients:  clients,
		handlers: make(map[domain.GrantType]GrantHandler, len(handlers)),
		tracer:   otel.Tracer(tracerName),
	}
	for _, h := range handlers {
		s.handlers[h.GrantType()] = h
	}

	return s
}

// Token processes a token request. Every failure is returned as an
// *serrors.OAuth2Error; unexpected errors are logged and reported as
// server_error.
func (s *GrantService) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token", trace.WithAttributes(
		attribute.String("oauth.grant_type", req.GrantType),
		attribute.String("oauth.client_id", req.Credentials.ClientID),
	))
	defer span.End()

	c, err := s.clients.Authenticate(ctx, req.Credentials, client.AuthOptions{Scope: req.Scope})
	if err != nil {
		return nil, s.fail(span, req, err)
	}

	grant := domain.GrantType(req.GrantType)
	h, ok := s.handlers[grant]
	if !ok {
		return nil, s.fail(span, req, serrors.NewUnsupportedGrantType())
	}

	// refresh_token carries the original grant forward and is checked there.
	if grant != domain.GrantRefreshToken {
		if err := client.CheckGrant(c, grant); err != nil {
			return nil, s.fail(span, req, err)
		}
	}

	issued, err := h.Handle(ctx, c, req)
	if err != nil {
		return nil, s.fail(span, req, err)
	}

	span.SetAttributes(attribute.String("oauth.token_id", issued.Access.ID))

	return NewTokenResponse(issued), nil
}

func (s *GrantService) fail(span trace.Span, req *TokenRequest, err error) error {
	var oerr *serrors.OAuth2Error
	if errors.As(err, &oerr) {
		span.SetAttributes(attribute.String("oauth.error", oerr.Code))
		metrics.TokenRequestErrorsTotal.WithLabelValues(oerr.Code).Inc()
		return oerr
	}

	log.Error().Err(err).
		Str("grant_type", req.GrantType).
		Str("client_id", req.Credentials.ClientID).
		Msg("token request failed")

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.TokenRequestErrorsTotal.WithLabelValues(serrors.ServerError).Inc()

	return serrors.NewServerError(serrors.ServerErrorDescription)
}

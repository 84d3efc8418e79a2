package federation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Bridge runs federated logins against the configured strategies.
type Bridge struct {
	strategies map[string]*Strategy
	order      []*Strategy
}

// NewBridge validates the strategies and rejects duplicate identifiers.
func NewBridge(strategies ...*Strategy) (*Bridge, error) {
	b := &Bridge{strategies: make(map[string]*Strategy, len(strategies))}

	for _, s := range strategies {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, ok := b.strategies[s.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.ID)
		}
		b.strategies[s.ID] = s
		b.order = append(b.order, s)
	}

	return b, nil
}

// Strategy returns the strategy with the given identifier.
func (b *Bridge) Strategy(id string) (*Strategy, bool) {
	s, ok := b.strategies[id]
	return s, ok
}

// Options lists the strategies in configuration order. redirectURI builds
// the local URL that starts a strategy.
func (b *Bridge) Options(redirectURI func(id string) string) []Option {
	opts := make([]Option, 0, len(b.order))
	for _, s := range b.order {
		opts = append(opts, Option{
			Grant:        s.Grant,
			ID:           s.ID,
			ProviderName: s.Name(),
			RedirectURI:  redirectURI(s.ID),
		})
	}

	return opts
}

// NewState returns a random value for the strategy state parameter.
func NewState() string {
	return uuid.NewString()
}

// BuildRedirectURI returns the provider authorization URL for the strategy.
// For PKCE strategies it also returns the code verifier, which the caller
// keeps until the callback.
func (b *Bridge) BuildRedirectURI(strategyID, state string) (string, string, error) {
	s, err := b.lookup(strategyID)
	if err != nil {
		return "", "", err
	}

	if s.Grant == GrantAuthorizationCodePKCE {
		verifier := oauth2.GenerateVerifier()
		return s.Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), verifier, nil
	}

	return s.Config.AuthCodeURL(state), "", nil
}

// CompleteExchange handles the provider callback: it passes provider errors
// through, checks the state and exchanges the code.
func (b *Bridge) CompleteExchange(ctx context.Context, strategyID string, params url.Values, expectedState, verifier string) (*oauth2.Token, error) {
	s, err := b.lookup(strategyID)
	if err != nil {
		return nil, err
	}

	if code := params.Get("error"); code != "" {
		return nil, &serrors.OAuth2Error{
			Code:        code,
			Description: params.Get("error_description"),
			URI:         params.Get("error_uri"),
		}
	}

	if expectedState == "" || params.Get("state") != expectedState {
		return nil, serrors.NewAccessDenied("The strategy state does not match.")
	}

	code := params.Get("code")
	if code == "" {
		return nil, serrors.NewAccessDenied(fmt.Sprintf("Failed to get %s token.", s.ID))
	}

	var opts []oauth2.AuthCodeOption
	if s.Grant == GrantAuthorizationCodePKCE {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := s.Config.Exchange(ctx, code, opts...)
	if err != nil {
		log.Warn().Err(err).Str("strategy", s.ID).Msg("federated code exchange failed")

		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorDescription != "" {
			return nil, serrors.NewAccessDenied(rerr.ErrorDescription)
		}
		return nil, serrors.NewAccessDenied(fmt.Sprintf("Failed to get %s token.", s.ID))
	}

	return token, nil
}

// Lookup maps the provider token to a local subject.
func (b *Bridge) Lookup(ctx context.Context, strategyID string, token *oauth2.Token) (*domain.Subject, error) {
	s, err := b.lookup(strategyID)
	if err != nil {
		return nil, err
	}

	subject, err := s.Lookup(ctx, s.Config.Client(ctx, token), token)
	if err != nil {
		return nil, fmt.Errorf("user lookup for strategy %s failed: %w", s.ID, err)
	}
	if subject == nil {
		return nil, serrors.NewAccessDenied(
			fmt.Sprintf("No account is associated with your %s profile.", strings.ToLower(s.Name())))
	}

	return subject, nil
}

// Login completes the exchange and looks the subject up.
func (b *Bridge) Login(ctx context.Context, strategyID string, params url.Values, expectedState, verifier string) (*domain.Subject, error) {
	if _, err := b.lookup(strategyID); err != nil {
		return nil, err
	}

	token, err := b.CompleteExchange(ctx, strategyID, params, expectedState, verifier)
	if err == nil {
		var subject *domain.Subject
		if subject, err = b.Lookup(ctx, strategyID, token); err == nil {
			metrics.FederatedLoginsTotal.WithLabelValues(strategyID, "success").Inc()
			audit.Log(audit.Event{
				Action:  audit.ActionFederatedLogin,
				Subject: subject.ID,
				Target:  strategyID,
				Success: true,
			})
			return subject, nil
		}
	}

	metrics.FederatedLoginsTotal.WithLabelValues(strategyID, "failure").Inc()
	audit.Log(audit.Event{Action: audit.ActionFederatedLogin, Target: strategyID, Err: err})

	return nil, err
}

func (b *Bridge) lookup(id string) (*Strategy, error) {
	s, ok := b.strategies[id]
	if !ok {
		return nil, serrors.NewAccessDenied(fmt.Sprintf("OAuth strategy %s not found.", id))
	}

	return s, nil
}

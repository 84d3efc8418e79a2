package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
	"github.com/rs/zerolog/log"
)

// Resource-server verification failures.
const (
	ErrDescInvalidToken     = "Invalid access token"
	ErrDescTokenNotApproved = "Access Token not approved"
	ErrDescTokenExpired     = "Access Token expired"
)

// VerifyOptions restrict which tokens a protected resource accepts.
type VerifyOptions struct {
	// Scope lists the scopes the token must carry.
	Scope string
	// Grants, when set, lists the grant types the token must have been
	// issued with.
	Grants []domain.GrantType
}

// VerifyResult is the outcome of a bearer token verification. Err is nil on
// success.
type VerifyResult struct {
	TokenID   string
	Subject   string
	ClientID  string
	Grant     domain.GrantType
	Scope     string
	ExpiresAt time.Time
	// Claims holds the subject profile returned by the claims lookup.
	Claims map[string]any

	Err *serrors.OAuth2Error
}

// OK reports whether the token was accepted.
func (r *VerifyResult) OK() bool { return r.Err == nil }

// Verifier checks bearer tokens for protected resources.
type Verifier struct {
	tokens *TokenService
	lookup ClaimsLookup
	now    func() time.Time
}

// NewVerifier creates a Verifier. lookup may be nil.
func NewVerifier(tokens *TokenService, lookup ClaimsLookup) *Verifier {
	return &Verifier{tokens: tokens, lookup: lookup, now: time.Now}
}

// Verify checks the signature of bearer, then the persisted record it names.
func (v *Verifier) Verify(ctx context.Context, bearer string, opts VerifyOptions) *VerifyResult {
	claims, err := v.tokens.Verify(bearer)
	if err != nil {
		return failed(serrors.NewInvalidToken(ErrDescInvalidToken))
	}

	record, err := v.tokens.AccessTokenRecord(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failed(serrors.NewInvalidToken(ErrDescInvalidToken))
		}
		log.Error().Err(err).Str("jti", claims.ID).Msg("failed to load access token")
		return failed(serrors.NewServerError(serrors.ServerErrorDescription))
	}

	if record.IsRevoked() {
		return failed(serrors.NewInvalidToken(ErrDescTokenNotApproved))
	}
	if record.IsExpired(v.now()) {
		return failed(serrors.NewInvalidToken(ErrDescTokenExpired))
	}

	if len(opts.Grants) > 0 && !slices.Contains(opts.Grants, record.Grant) {
		return failed(serrors.NewAccessDenied(grantsAllowed(opts.Grants)))
	}

	if opts.Scope != "" && !scope.Contains(record.Scope, opts.Scope) {
		return failed(serrors.NewInsufficientScope(scope.Normalize(opts.Scope)))
	}

	result := &VerifyResult{
		TokenID:   record.ID,
		Subject:   record.UserID,
		ClientID:  record.ClientID,
		Grant:     record.Grant,
		Scope:     record.Scope,
		ExpiresAt: record.ExpiresAt,
	}

	if record.Grant != domain.GrantClientCredentials && v.lookup != nil {
		result.Claims, err = v.lookup(ctx, record.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return failed(serrors.NewInvalidToken(ErrDescInvalidToken))
		}
		if err != nil {
			log.Error().Err(err).Str("sub", record.UserID).Msg("subject lookup failed")
			return failed(serrors.NewServerError(serrors.ServerErrorDescription))
		}
	}

	return result
}

func failed(err *serrors.OAuth2Error) *VerifyResult {
	return &VerifyResult{Err: err}
}

func grantsAllowed(grants []domain.GrantType) string {
	names := make([]string, len(grants))
	for i, g := range grants {
		names[i] = string(g)
	}

	if len(names) == 1 {
		return fmt.Sprintf("Only %q grant is allowed", names[0])
	}

	return fmt.Sprintf("Only %q grants are allowed", strings.Join(names, ", "))
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/scope"
	"github.com/rs/zerolog/log"
)

// Claims is the payload of access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims

	ClientID        string `json:"client_id"`
	AuthorizedParty string `json:"azp,omitempty"`
	Scope           string `json:"scope,omitempty"`
}

// IssueOptions describe the token to mint.
type IssueOptions struct {
	Client    *domain.Client
	Grant     domain.GrantType
	Subject   string
	Scope     string
	UserAgent string
}

// IssuedTokens is the result of a successful issuance.
type IssuedTokens struct {
	AccessToken  string
	Access       *domain.AccessToken
	RefreshToken string
	Refresh      *domain.RefreshToken
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// TokenService handles token generation and validation
type TokenService struct {
	octx   domain.OAuthContext
	signer *TokenSigner
	repo   domain.TokenRepository
	cache  cache.TokenStore
	scopes domain.ScopeRepository
	now    func() time.Time
}

// NewTokenService creates a new TokenService instance. tokenCache and scopes
// are optional.
func NewTokenService(
	octx domain.OAuthContext,
	signer *TokenSigner,
	repo domain.TokenRepository,
	tokenCache cache.TokenStore,
	scopes domain.ScopeRepository,
) *TokenService {
	return &TokenService{
		octx:   octx,
		signer: signer,
		repo:   repo,
		cache:  tokenCache,
		scopes: scopes,
		now:    time.Now,
	}
}

// toCacheEntry converts an access token record to a cache.TokenEntry.
func toCacheEntry(t *domain.AccessToken) *cache.TokenEntry {
	return &cache.TokenEntry{
		ID: t.ID, UserID: t.UserID, ClientID: t.ClientID, Grant: string(t.Grant),
		Scope: t.Scope, ExpiresAt: t.ExpiresAt, IsRevoked: t.IsRevoked(),
	}
}

// fromCacheEntry rebuilds the parts of an access token record the cache holds.
func fromCacheEntry(entry *cache.TokenEntry, now time.Time) *domain.AccessToken {
	t := &domain.AccessToken{
		ID:        entry.ID,
		UserID:    entry.UserID,
		ClientID:  entry.ClientID,
		Grant:     domain.GrantType(entry.Grant),
		Scope:     entry.Scope,
		ExpiresAt: entry.ExpiresAt,
	}
	if entry.IsRevoked {
		t.RevokedAt = &now
	}

	return t
}

// Issue mints an access token and, when the grant and client allow it, a
// refresh token.
func (s *TokenService) Issue(ctx context.Context, opts IssueOptions) (*IssuedTokens, error) {
	if err := client.CheckGrant(opts.Client, opts.Grant); err != nil {
		return nil, err
	}
	if err := s.ensureScopes(ctx, opts.Scope); err != nil {
		return nil, err
	}

	signed, access, err := s.IssueAccessToken(ctx, opts)
	if err != nil {
		return nil, err
	}

	issued := &IssuedTokens{
		AccessToken: signed,
		Access:      access,
		TokenType:   s.octx.TokenType,
		ExpiresIn:   int64(s.octx.AccessTokenLifetimes.For(opts.Client).Seconds()),
		Scope:       access.Scope,
	}

	if RefreshTokenAllowed(opts.Client, opts.Grant) {
		issued.RefreshToken, issued.Refresh, err = s.IssueRefreshToken(ctx, opts.Client, access)
		if err != nil {
			return nil, err
		}
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(opts.Grant)).Inc()

	return issued, nil
}

// RefreshTokenAllowed reports whether a refresh token accompanies an access
// token issued to c with grant.
func RefreshTokenAllowed(c *domain.Client, grant domain.GrantType) bool {
	if grant == domain.GrantClientCredentials || grant == domain.GrantImplicit {
		return false
	}

	return c.IsConfidential()
}

// IssueAccessToken persists an access token record and signs it.
func (s *TokenService) IssueAccessToken(ctx context.Context, opts IssueOptions) (string, *domain.AccessToken, error) {
	now := s.now().UTC()
	record := &domain.AccessToken{
		ID:        uuid.NewString(),
		UserID:    opts.Subject,
		ClientID:  opts.Client.ID,
		Grant:     opts.Grant,
		Name:      opts.Client.Name,
		Scope:     scope.Normalize(opts.Scope),
		UserAgent: opts.UserAgent,
		ExpiresAt: now.Add(s.octx.AccessTokenLifetimes.For(opts.Client)),
		CreatedAt: now,
	}

	if err := s.repo.CreateAccessToken(ctx, record); err != nil {
		return "", nil, fmt.Errorf("failed to store access token: %w", err)
	}

	signed, err := s.signer.Sign(s.claims(opts.Client, record.UserID, record.ID, record.Scope, now, record.ExpiresAt))
	if err != nil {
		return "", nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, toCacheEntry(record)); err != nil {
			log.Warn().Err(err).Str("jti", record.ID).Msg("failed to cache token")
		}
	}

	return signed, record, nil
}

// IssueRefreshToken persists a refresh token linked to access and signs it.
func (s *TokenService) IssueRefreshToken(ctx context.Context, c *domain.Client, access *domain.AccessToken) (string, *domain.RefreshToken, error) {
	now := s.now().UTC()
	record := &domain.RefreshToken{
		ID:            uuid.NewString(),
		AccessTokenID: access.ID,
		ClientID:      c.ID,
		ExpiresAt:     now.Add(s.octx.RefreshTokenLifetimes.For(c)),
		CreatedAt:     now,
	}

	if err := s.repo.CreateRefreshToken(ctx, record); err != nil {
		return "", nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	signed, err := s.signer.Sign(s.claims(c, access.UserID, record.ID, "", now, record.ExpiresAt))
	if err != nil {
		return "", nil, err
	}

	return signed, record, nil
}

func (s *TokenService) claims(c *domain.Client, subject, jti, scopes string, issuedAt, expiresAt time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.octx.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{c.Audience()},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        jti,
		},
		ClientID:        c.ID,
		AuthorizedParty: c.Audience(),
		Scope:           scopes,
	}
}

// Verify checks the signature and algorithm of a token and returns its
// claims. Expiry and revocation are decided by the persisted record.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	if err := s.signer.Parse(token, claims); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidSignature)
	}

	return claims, nil
}

// AccessTokenRecord loads an access token record, preferring the cache.
func (s *TokenService) AccessTokenRecord(ctx context.Context, id string) (*domain.AccessToken, error) {
	if s.cache != nil {
		entry, err := s.cache.Get(ctx, id)
		if err == nil {
			return fromCacheEntry(entry, s.now()), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Str("jti", id).Msg("token cache lookup failed")
		}
	}

	record, err := s.repo.GetAccessToken(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && record.IsActive(s.now()) {
		if err := s.cache.Set(ctx, toCacheEntry(record)); err != nil {
			log.Warn().Err(err).Str("jti", id).Msg("failed to cache token")
		}
	}

	return record, nil
}

// RevokeAccessToken marks the access token revoked and caches it as revoked,
// so lookups that raced the revocation cannot cache it as active again.
func (s *TokenService) RevokeAccessToken(ctx context.Context, id string) error {
	if err := s.repo.RevokeAccessToken(ctx, id, s.now().UTC()); err != nil {
		return err
	}

	if s.cache != nil {
		s.cacheRevoked(ctx, id)
	}

	return nil
}

func (s *TokenService) cacheRevoked(ctx context.Context, id string) {
	record, err := s.repo.GetAccessToken(ctx, id)
	if err == nil {
		err = s.cache.Set(ctx, toCacheEntry(record))
	}
	if err == nil {
		return
	}

	log.Warn().Err(err).Str("jti", id).Msg("failed to cache revoked token, evicting it")
	if err := s.cache.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Str("jti", id).Msg("failed to evict revoked token from cache")
	}
}

// ensureScopes rejects scope names that are not registered.
func (s *TokenService) ensureScopes(ctx context.Context, scopes string) error {
	if s.scopes == nil || scope.IsAll(scopes) {
		return nil
	}

	for _, name := range scope.Split(scopes) {
		if _, err := s.scopes.GetScope(ctx, name); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return serrors.NewInvalidScope(fmt.Sprintf("Unknown scope %q.", name))
			}

			return fmt.Errorf("failed to load scope %s: %w", name, err)
		}
	}

	return nil
}

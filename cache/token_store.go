package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when no entry is cached for the key.
var ErrCacheMiss = errors.New("cache miss")

// TokenEntry is the cached projection of an access token record, keyed by
// its jti. It lets resource-server verification skip the repository on hot
// paths.
type TokenEntry struct {
	ID        string
	ClientID  string
	UserID    string
	Grant     string
	Scope     string
	ExpiresAt time.Time
	IsRevoked bool
}

// TokenStore caches access token entries for at most the store's bound and
// never past the token expiry.
type TokenStore interface {
	// Set caches token. An entry cached as revoked is never replaced by an
	// active one, so a lookup racing a revocation cannot resurrect it.
	Set(ctx context.Context, token *TokenEntry) error
	// Get returns ErrCacheMiss when nothing is cached for id.
	Get(ctx context.Context, id string) (*TokenEntry, error)
	Delete(ctx context.Context, id string) error
	// Clear drops every cached entry.
	Clear(ctx context.Context) error
}

// EntryTTL is how long token may stay cached: until it expires, capped at
// maxTTL when that is positive.
func EntryTTL(token *TokenEntry, maxTTL time.Duration) time.Duration {
	ttl := time.Until(token.ExpiresAt)
	if maxTTL > 0 && ttl > maxTTL {
		return maxTTL
	}

	return ttl
}

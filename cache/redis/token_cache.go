package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/redis/go-redis/v9"
)

// tokenHash is the hash layout of a cached token entry.
type tokenHash struct {
	ID        string `redis:"id"`
	ClientID  string `redis:"client_id"`
	UserID    string `redis:"user_id"`
	Grant     string `redis:"grant"`
	Scope     string `redis:"scope"`
	ExpiresAt int64  `redis:"expires_at"`
	IsRevoked bool   `redis:"is_revoked"`
}

// TokenStore implements cache.TokenStore using Redis hashes.
type TokenStore struct {
	client redis.UniversalClient
	prefix string // Optional prefix for keys
	maxTTL time.Duration
}

var _ cache.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a new [TokenStore] instance. maxTTL bounds how long
// any entry is cached.
func NewTokenStore(client redis.UniversalClient, prefix string, maxTTL time.Duration) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
		maxTTL: maxTTL,
	}
}

// redisKey returns the Redis key for a given token id
func (r *TokenStore) redisKey(id string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, id)
}

// setTokenScript writes a token hash unless an active entry (ARGV[1] = "0")
// would replace one cached as revoked. Returns 1 when written, 0 otherwise.
var setTokenScript = redis.NewScript(`
if ARGV[1] == "0" and redis.call('HGET', KEYS[1], 'is_revoked') == "1" then
	return 0
end
redis.call('HSET', KEYS[1],
	'id', ARGV[2], 'client_id', ARGV[3], 'user_id', ARGV[4], 'grant', ARGV[5],
	'scope', ARGV[6], 'expires_at', ARGV[7], 'is_revoked', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[8])
return 1
`)

// Set stores a token entry until the token expires or maxTTL passes,
// whichever comes first.
func (r *TokenStore) Set(ctx context.Context, token *cache.TokenEntry) error {
	ttl := cache.EntryTTL(token, r.maxTTL)
	if ttl <= 0 {
		return nil
	}

	revoked := "0"
	if token.IsRevoked {
		revoked = "1"
	}

	err := setTokenScript.Run(ctx, r.client, []string{r.redisKey(token.ID)},
		revoked, token.ID, token.ClientID, token.UserID, token.Grant, token.Scope,
		token.ExpiresAt.Unix(), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set token in Redis: %w", err)
	}

	return nil
}

// Get retrieves a token entry from Redis
func (r *TokenStore) Get(ctx context.Context, id string) (*cache.TokenEntry, error) {
	res := r.client.HGetAll(ctx, r.redisKey(id))
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}
	if len(res.Val()) == 0 {
		return nil, cache.ErrCacheMiss
	}

	var entry tokenHash
	if err := res.Scan(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached token: %w", err)
	}

	return &cache.TokenEntry{
		ID:        entry.ID,
		ClientID:  entry.ClientID,
		UserID:    entry.UserID,
		Grant:     entry.Grant,
		Scope:     entry.Scope,
		ExpiresAt: time.Unix(entry.ExpiresAt, 0),
		IsRevoked: entry.IsRevoked,
	}, nil
}

// Delete removes a token from Redis
func (r *TokenStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete token from Redis: %w", err)
	}

	return nil
}

// Clear removes all tokens from Redis
func (r *TokenStore) Clear(ctx context.Context) error {
	pattern := r.redisKey("*")
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan token keys: %w", err)
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("failed to delete token keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

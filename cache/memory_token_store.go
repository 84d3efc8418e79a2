package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryTokenStore implements TokenStore using ttlcache. Entries live in the
// process, so revocations made by other processes are only seen once the
// entry ages out after maxTTL.
type MemoryTokenStore struct {
	mu     sync.Mutex
	cache  *ttlcache.Cache[string, TokenEntry]
	maxTTL time.Duration
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates a new in-memory token store with automatic cleanup.
// maxTTL bounds how long any entry is cached.
func NewMemoryTokenStore(maxTTL time.Duration) *MemoryTokenStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, TokenEntry](maxTTL),
		ttlcache.WithDisableTouchOnHit[string, TokenEntry](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryTokenStore{
		cache:  cache,
		maxTTL: maxTTL,
	}
}

// Set implements TokenStore.Set. Entries that are already expired are not cached.
func (s *MemoryTokenStore) Set(_ context.Context, token *TokenEntry) error {
	ttl := EntryTTL(token, s.maxTTL)
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !token.IsRevoked {
		if item := s.cache.Get(token.ID); item != nil && item.Value().IsRevoked {
			return nil
		}
	}
	s.cache.Set(token.ID, *token, ttl)

	return nil
}

// Get implements TokenStore.Get.
func (s *MemoryTokenStore) Get(_ context.Context, id string) (*TokenEntry, error) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, ErrCacheMiss
	}

	entry := item.Value()

	return &entry, nil
}

// Delete removes a token from the cache.
func (s *MemoryTokenStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)

	return nil
}

// Clear removes all tokens from the cache.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()

	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()

	return nil
}

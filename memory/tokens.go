package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
)

var _ domain.TokenRepository = (*TokenRepository)(nil)

// TokenRepository stores access and refresh token records in memory.
type TokenRepository struct {
	mu      sync.Mutex
	access  map[string]domain.AccessToken
	refresh map[string]domain.RefreshToken
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		access:  make(map[string]domain.AccessToken),
		refresh: make(map[string]domain.RefreshToken),
	}
}

func (r *TokenRepository) CreateAccessToken(_ context.Context, token *domain.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.access[token.ID]; ok {
		return fmt.Errorf("access token %s: %w", token.ID, domain.ErrConflict)
	}
	r.access[token.ID] = *token

	return nil
}

func (r *TokenRepository) GetAccessToken(_ context.Context, id string) (*domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.access[id]
	if !ok {
		return nil, fmt.Errorf("access token %s: %w", id, domain.ErrNotFound)
	}

	return &t, nil
}

func (r *TokenRepository) RevokeAccessToken(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.access[id]
	if !ok {
		return fmt.Errorf("access token %s: %w", id, domain.ErrNotFound)
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &at
		r.access[id] = t
	}

	return nil
}

func (r *TokenRepository) CreateRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.refresh[token.ID]; ok {
		return fmt.Errorf("refresh token %s: %w", token.ID, domain.ErrConflict)
	}
	r.refresh[token.ID] = *token

	return nil
}

func (r *TokenRepository) GetRefreshToken(_ context.Context, id string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.refresh[id]
	if !ok {
		return nil, fmt.Errorf("refresh token %s: %w", id, domain.ErrNotFound)
	}

	return &t, nil
}

func (r *TokenRepository) ConsumeRefreshToken(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.refresh[id]
	if !ok {
		return fmt.Errorf("refresh token %s: %w", id, domain.ErrNotFound)
	}
	if t.RevokedAt != nil {
		return fmt.Errorf("refresh token %s already consumed: %w", id, domain.ErrConflict)
	}
	t.RevokedAt = &at
	r.refresh[id] = t

	return nil
}

func (r *TokenRepository) RevokeRefreshToken(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.refresh[id]
	if !ok {
		return fmt.Errorf("refresh token %s: %w", id, domain.ErrNotFound)
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &at
		r.refresh[id] = t
	}

	return nil
}

func (r *TokenRepository) DeleteExpiredTokens(_ context.Context, accessBefore, refreshBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.refresh {
		if t.ExpiresAt.Before(refreshBefore) {
			delete(r.refresh, id)
			n++
		}
	}
	for id, t := range r.access {
		if t.ExpiresAt.Before(accessBefore) {
			delete(r.access, id)
			n++
		}
	}

	return n, nil
}

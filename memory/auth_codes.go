package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
)

var _ domain.AuthCodeRepository = (*AuthCodeRepository)(nil)

// AuthCodeRepository stores authorization codes in memory.
type AuthCodeRepository struct {
	mu     sync.Mutex
	codes  map[string]domain.AuthCode
	byCode map[string]string // code value -> record id
}

// NewAuthCodeRepository creates a new AuthCodeRepository.
func NewAuthCodeRepository() *AuthCodeRepository {
	return &AuthCodeRepository{
		codes:  make(map[string]domain.AuthCode),
		byCode: make(map[string]string),
	}
}

func (r *AuthCodeRepository) CreateAuthCode(_ context.Context, code *domain.AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[code.ID]; ok {
		return fmt.Errorf("authorization code %s: %w", code.ID, domain.ErrConflict)
	}
	r.codes[code.ID] = *code
	if code.Code != "" {
		r.byCode[code.Code] = code.ID
	}

	return nil
}

func (r *AuthCodeRepository) GetAuthCode(_ context.Context, id string) (*domain.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	if !ok {
		return nil, fmt.Errorf("authorization code %s: %w", id, domain.ErrNotFound)
	}

	return &c, nil
}

func (r *AuthCodeRepository) GetAuthCodeByCode(_ context.Context, clientID, code string) (*domain.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("authorization code: %w", domain.ErrNotFound)
	}
	c := r.codes[id]
	if c.ClientID != clientID {
		return nil, fmt.Errorf("authorization code: %w", domain.ErrNotFound)
	}

	return &c, nil
}

func (r *AuthCodeRepository) BindAuthCode(_ context.Context, id string, binding domain.AuthCodeBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	if !ok {
		return fmt.Errorf("authorization code %s: %w", id, domain.ErrNotFound)
	}
	if c.BoundAt != nil || c.ExchangedAt != nil || c.RevokedAt != nil {
		return fmt.Errorf("authorization code %s already bound: %w", id, domain.ErrConflict)
	}
	if binding.Code != "" {
		if _, taken := r.byCode[binding.Code]; taken {
			return fmt.Errorf("authorization code value collision: %w", domain.ErrConflict)
		}
		r.byCode[binding.Code] = id
	}

	at := binding.BoundAt
	c.UserID = binding.UserID
	c.Scope = binding.Scope
	c.Code = binding.Code
	c.BoundAt = &at
	r.codes[id] = c

	return nil
}

func (r *AuthCodeRepository) MarkAuthCodeExchanged(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	if !ok {
		return fmt.Errorf("authorization code %s: %w", id, domain.ErrNotFound)
	}
	if c.ExchangedAt != nil || c.RevokedAt != nil {
		return fmt.Errorf("authorization code %s already used: %w", id, domain.ErrConflict)
	}

	c.ExchangedAt = &at
	r.codes[id] = c

	return nil
}

func (r *AuthCodeRepository) RevokeAuthCode(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	if !ok {
		return fmt.Errorf("authorization code %s: %w", id, domain.ErrNotFound)
	}
	if c.RevokedAt == nil {
		c.RevokedAt = &at
		r.codes[id] = c
	}

	return nil
}

func (r *AuthCodeRepository) DeleteExpiredAuthCodes(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.codes {
		if c.ExpiresAt.Before(before) {
			delete(r.codes, id)
			if c.Code != "" {
				delete(r.byCode, c.Code)
			}
			n++
		}
	}

	return n, nil
}

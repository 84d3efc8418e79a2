package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/scope"
)

var scopeNamePattern = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]+$`)

// ScopeService manages the scope registry.
type ScopeService struct {
	scopes domain.ScopeRepository
	now    func() time.Time
}

func NewScopeService(scopes domain.ScopeRepository) *ScopeService {
	return &ScopeService{scopes: scopes, now: time.Now}
}

// Create registers a scope. A parent must be registered before its children.
func (s *ScopeService) Create(ctx context.Context, name, description, parent string) (*domain.Scope, error) {
	if !scopeNamePattern.MatchString(name) || name == scope.All {
		return nil, fmt.Errorf("%w: invalid scope name %q", domain.ErrUnknownScope, name)
	}

	if parent != "" {
		if _, err := s.scopes.GetScope(ctx, parent); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent %s", domain.ErrUnknownScope, parent)
			}
			return nil, fmt.Errorf("failed to load parent scope: %w", err)
		}
	}

	sc := &domain.Scope{
		Name:        name,
		Description: description,
		Parent:      parent,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.scopes.CreateScope(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to create scope: %w", err)
	}

	return sc, nil
}

// List returns every registered scope.
func (s *ScopeService) List(ctx context.Context) ([]*domain.Scope, error) {
	return s.scopes.ListScopes(ctx)
}

// Delete removes a scope.
func (s *ScopeService) Delete(ctx context.Context, name string) error {
	return s.scopes.DeleteScope(ctx, name)
}

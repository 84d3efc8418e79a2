// Package memory provides in-memory implementations of the repository
// contracts. They are safe for concurrent use and suitable for tests and
// single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pilab-dev/shadow-oauth/domain"
)

var (
	_ domain.ClientRepository = (*ClientRepository)(nil)
	_ domain.ScopeRepository  = (*ScopeRepository)(nil)
)

// ClientRepository stores clients in memory.
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

// NewClientRepository creates a new ClientRepository.
func NewClientRepository() *ClientRepository {
	return &ClientRepository{clients: make(map[string]domain.Client)}
}

func (r *ClientRepository) CreateClient(_ context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; ok {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrConflict)
	}
	r.clients[client.ID] = cloneClient(client)

	return nil
}

func (r *ClientRepository) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
	}
	cp := cloneClient(&c)

	return &cp, nil
}

func (r *ClientRepository) UpdateClient(_ context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; !ok {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrNotFound)
	}
	r.clients[client.ID] = cloneClient(client)

	return nil
}

func (r *ClientRepository) DeleteClient(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[clientID]; !ok {
		return fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
	}
	delete(r.clients, clientID)

	return nil
}

// ListClients returns the clients ordered by creation time.
func (r *ClientRepository) ListClients(_ context.Context) ([]*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Client, 0, len(r.clients))
	for _, c := range r.clients {
		cp := cloneClient(&c)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func cloneClient(c *domain.Client) domain.Client {
	cp := *c
	cp.Grants = append([]domain.GrantType(nil), c.Grants...)
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		cp.RevokedAt = &t
	}

	return cp
}

// ScopeRepository stores the scope registry in memory.
type ScopeRepository struct {
	mu     sync.RWMutex
	scopes map[string]domain.Scope
}

// NewScopeRepository creates a new ScopeRepository.
func NewScopeRepository() *ScopeRepository {
	return &ScopeRepository{scopes: make(map[string]domain.Scope)}
}

func (r *ScopeRepository) CreateScope(_ context.Context, s *domain.Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scopes[s.Name]; ok {
		return fmt.Errorf("scope %s: %w", s.Name, domain.ErrConflict)
	}
	r.scopes[s.Name] = *s

	return nil
}

func (r *ScopeRepository) GetScope(_ context.Context, name string) (*domain.Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scopes[name]
	if !ok {
		return nil, fmt.Errorf("scope %s: %w", name, domain.ErrNotFound)
	}

	return &s, nil
}

func (r *ScopeRepository) ListScopes(_ context.Context) ([]*domain.Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (r *ScopeRepository) DeleteScope(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scopes[name]; !ok {
		return fmt.Errorf("scope %s: %w", name, domain.ErrNotFound)
	}
	delete(r.scopes, name)

	return nil
}

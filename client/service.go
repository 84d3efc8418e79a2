// Package client implements the client registry: registration and
// administration of OAuth clients and the policy deciding whether a client
// may take part in a request.
package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/scope"
	"github.com/rs/zerolog/log"
)

const secretLength = 40

// Registration describes a client to register.
type Registration struct {
	Name         string
	Domain       string
	Logo         string
	Description  string
	Profile      domain.ClientProfile
	Scope        string
	RedirectURIs []string
	Internal     bool
	Personal     bool
}

// Service handles client management operations and client authentication.
type Service struct {
	clients domain.ClientRepository
	scopes  domain.ScopeRepository
	hasher  auth.PasswordHasher
	now     func() time.Time
}

// NewService creates a new client Service. scopes may be nil, in which case
// scope names are not checked against the registry.
func NewService(clients domain.ClientRepository, scopes domain.ScopeRepository, hasher auth.PasswordHasher) *Service {
	return &Service{
		clients: clients,
		scopes:  scopes,
		hasher:  hasher,
		now:     time.Now,
	}
}

// generateRandomString creates a cryptographically secure random string of
// the specified length. Bytes at or above the largest multiple of the charset
// size are skipped so every character is equally likely.
func generateRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const limit = 256 - 256%len(charset)

	out := make([]byte, 0, length)
	buf := make([]byte, length)

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}

		for _, b := range buf {
			if int(b) >= limit || len(out) == length {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
		}
	}

	return string(out), nil
}

// Register validates and stores a new client. For confidential clients the
// generated secret is returned in plaintext; it is never retrievable again.
func (s *Service) Register(ctx context.Context, reg Registration) (*domain.Client, string, error) {
	now := s.now().UTC()
	c := &domain.Client{
		ID:           uuid.NewString(),
		Name:         reg.Name,
		Domain:       reg.Domain,
		Logo:         reg.Logo,
		Description:  reg.Description,
		Profile:      reg.Profile,
		Scope:        scope.Normalize(reg.Scope),
		RedirectURIs: reg.RedirectURIs,
		Internal:     reg.Internal,
		Personal:     reg.Personal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var secret string
	if c.Profile == domain.ProfileWeb {
		var err error
		if secret, err = generateRandomString(secretLength); err != nil {
			return nil, "", err
		}
		hash, err := s.hasher.Hash(secret)
		if err != nil {
			return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
		}
		c.SecretHash = hash
	}

	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, "", err
	}
	if err := s.ensureScopes(ctx, c.Scope); err != nil {
		return nil, "", err
	}

	if err := s.clients.CreateClient(ctx, c); err != nil {
		return nil, "", fmt.Errorf("failed to store client: %w", err)
	}

	log.Info().Str("client_id", c.ID).Str("client_type", string(c.Type)).
		Bool("internal", c.Internal).Msg("client registered")

	return c, secret, nil
}

// RotateSecret replaces the secret of a confidential client and returns the
// new plaintext secret.
func (s *Service) RotateSecret(ctx context.Context, clientID string) (string, error) {
	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return "", err
	}
	if !c.IsConfidential() {
		return "", fmt.Errorf("%w: public clients have no secret", domain.ErrInvalidClient)
	}

	secret, err := generateRandomString(secretLength)
	if err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	c.SecretHash = hash
	c.UpdatedAt = s.now().UTC()

	if err := s.clients.UpdateClient(ctx, c); err != nil {
		return "", fmt.Errorf("failed to update client: %w", err)
	}

	return secret, nil
}

// Revoke marks the client revoked. Already revoked clients are left untouched.
func (s *Service) Revoke(ctx context.Context, clientID string) (*domain.Client, error) {
	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if c.IsRevoked() {
		return c, nil
	}

	now := s.now().UTC()
	c.RevokedAt = &now
	c.UpdatedAt = now
	if err := s.clients.UpdateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to revoke client: %w", err)
	}

	log.Info().Str("client_id", c.ID).Msg("client revoked")

	return c, nil
}

// Get returns a client by ID.
func (s *Service) Get(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.clients.GetClient(ctx, clientID)
}

// List returns every registered client.
func (s *Service) List(ctx context.Context) ([]*domain.Client, error) {
	return s.clients.ListClients(ctx)
}

// Delete removes a client.
func (s *Service) Delete(ctx context.Context, clientID string) error {
	return s.clients.DeleteClient(ctx, clientID)
}

// VerifySecret reports whether secret matches the client's stored secret.
// Public clients match only the empty secret.
func (s *Service) VerifySecret(c *domain.Client, secret string) bool {
	if !c.IsConfidential() {
		return secret == ""
	}
	if secret == "" {
		return false
	}

	return s.hasher.Verify(c.SecretHash, secret) == nil
}

// ensureScopes checks that every scope token is registered.
func (s *Service) ensureScopes(ctx context.Context, scopes string) error {
	if s.scopes == nil || scope.IsAll(scopes) {
		return nil
	}

	for _, name := range scope.Split(scopes) {
		if _, err := s.scopes.GetScope(ctx, name); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrUnknownScope, name)
			}

			return fmt.Errorf("failed to load scope %s: %w", name, err)
		}
	}

	return nil
}

func lookupFailure(err error, onMissing *serrors.OAuth2Error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return onMissing
	}

	return fmt.Errorf("failed to load client: %w", err)
}

package auth

import (
	"context"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/rs/zerolog/log"
)

// StaticUser is an end-user account defined in configuration.
type StaticUser struct {
	Username     string            `mapstructure:"username"`
	PasswordHash string            `mapstructure:"password_hash"`
	Scope        string            `mapstructure:"scope"`
	Claims       map[string]string `mapstructure:"claims"`

	// FederatedIDs maps a strategy identifier to the user's id at that
	// provider (GitHub login, Google subject, ...).
	FederatedIDs map[string]string `mapstructure:"federated_ids"`
}

// StaticDirectory authenticates end-users against a fixed list of accounts.
// It backs the password grant, the login form and federated lookups when the
// server runs without an external user store.
type StaticDirectory struct {
	hasher PasswordHasher
	users  map[string]StaticUser
}

// NewStaticDirectory creates a directory over the given users.
func NewStaticDirectory(hasher PasswordHasher, users []StaticUser) *StaticDirectory {
	idx := make(map[string]StaticUser, len(users))
	for _, u := range users {
		idx[u.Username] = u
	}

	return &StaticDirectory{hasher: hasher, users: idx}
}

// Authenticate returns the subject for valid credentials and nil otherwise.
func (d *StaticDirectory) Authenticate(_ context.Context, username, password string) (*domain.Subject, error) {
	u, ok := d.users[username]
	if !ok {
		return nil, nil
	}
	if err := d.hasher.Verify(u.PasswordHash, password); err != nil {
		log.Debug().Str("username", username).Msg("password mismatch")
		return nil, nil
	}

	return u.subject(), nil
}

// Claims returns the configured claims of the user with the given id.
func (d *StaticDirectory) Claims(_ context.Context, subjectID string) (map[string]any, error) {
	u, ok := d.users[subjectID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return u.subject().Claims, nil
}

// LookupFederated maps a provider account to a local subject. It returns nil
// when no user is linked to the account.
func (d *StaticDirectory) LookupFederated(_ context.Context, strategyID, externalID string) (*domain.Subject, error) {
	for _, u := range d.users {
		if id, ok := u.FederatedIDs[strategyID]; ok && id == externalID {
			return u.subject(), nil
		}
	}

	return nil, nil
}

func (u StaticUser) subject() *domain.Subject {
	claims := make(map[string]any, len(u.Claims)+1)
	for k, v := range u.Claims {
		claims[k] = v
	}
	claims["preferred_username"] = u.Username

	return &domain.Subject{ID: u.Username, Scope: u.Scope, Claims: claims}
}

package domain

import (
	"context"
	"time"
)

// ClientRepository defines the interface for client storage and retrieval
type ClientRepository interface {
	// CreateClient stores a new client. Returns ErrConflict on a duplicate ID.
	CreateClient(ctx context.Context, client *Client) error
	// GetClient retrieves a client by ID. Returns ErrNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	DeleteClient(ctx context.Context, clientID string) error
	ListClients(ctx context.Context) ([]*Client, error)
}

// ScopeRepository stores the scope registry.
type ScopeRepository interface {
	CreateScope(ctx context.Context, scope *Scope) error
	GetScope(ctx context.Context, name string) (*Scope, error)
	ListScopes(ctx context.Context) ([]*Scope, error)
	DeleteScope(ctx context.Context, name string) error
}

// AuthCodeRepository stores authorization requests and their codes.
//
// BindAuthCode and MarkAuthCodeExchanged are conditional updates: they
// return ErrConflict when the record is no longer in the expected state, so
// that concurrent callers observe exactly one winner.
type AuthCodeRepository interface {
	CreateAuthCode(ctx context.Context, code *AuthCode) error
	GetAuthCode(ctx context.Context, id string) (*AuthCode, error)
	// GetAuthCodeByCode looks up a bound code by its value for the owning client.
	GetAuthCodeByCode(ctx context.Context, clientID, code string) (*AuthCode, error)
	// BindAuthCode assigns the subject, granted scope and code value to an
	// unbound record.
	BindAuthCode(ctx context.Context, id string, binding AuthCodeBinding) error
	// MarkAuthCodeExchanged sets the exchanged marker if it is unset and the
	// record is not revoked.
	MarkAuthCodeExchanged(ctx context.Context, id string, at time.Time) error
	RevokeAuthCode(ctx context.Context, id string, at time.Time) error
	DeleteExpiredAuthCodes(ctx context.Context, before time.Time) (int64, error)
}

// TokenRepository stores access and refresh token records.
type TokenRepository interface {
	CreateAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, id string) (*AccessToken, error)
	// RevokeAccessToken is idempotent.
	RevokeAccessToken(ctx context.Context, id string, at time.Time) error

	CreateRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	// ConsumeRefreshToken revokes the token only if it is not revoked yet and
	// returns ErrConflict otherwise.
	ConsumeRefreshToken(ctx context.Context, id string, at time.Time) error
	// RevokeRefreshToken is idempotent.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error

	// DeleteExpiredTokens removes access tokens that expired before
	// accessBefore and refresh tokens that expired before refreshBefore.
	// Access token records must outlive the refresh tokens linked to them.
	DeleteExpiredTokens(ctx context.Context, accessBefore, refreshBefore time.Time) (int64, error)
}

// FlowStore keeps FlowState values between HTTP round trips.
type FlowStore interface {
	SaveFlow(ctx context.Context, flow *FlowState, ttl time.Duration) error
	// GetFlow returns ErrNotFound for unknown or expired flows.
	GetFlow(ctx context.Context, id string) (*FlowState, error)
	DeleteFlow(ctx context.Context, id string) error
}

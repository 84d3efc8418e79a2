package domain

import "time"

// AccessToken is the persisted record of an issued access token. Its ID is
// the jti claim of the signed token.
type AccessToken struct {
	ID        string     `bson:"_id"                  json:"id"`
	UserID    string     `bson:"user_id"              json:"user_id"`
	ClientID  string     `bson:"client_id"            json:"client_id"`
	Grant     GrantType  `bson:"grant"                json:"grant"`
	Name      string     `bson:"name,omitempty"       json:"name,omitempty"`
	Scope     string     `bson:"scope,omitempty"      json:"scope,omitempty"`
	UserAgent string     `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	ExpiresAt time.Time  `bson:"expires_at"           json:"expires_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"           json:"created_at"`
}

func (t *AccessToken) IsExpired(now time.Time) bool { return now.After(t.ExpiresAt) }
func (t *AccessToken) IsRevoked() bool             { return t.RevokedAt != nil }

// IsActive reports whether the token is neither expired nor revoked.
func (t *AccessToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// RefreshToken is the persisted record of an issued refresh token.
type RefreshToken struct {
	ID            string     `bson:"_id"                  json:"id"`
	AccessTokenID string     `bson:"access_token_id"      json:"access_token_id"`
	ClientID      string     `bson:"client_id"            json:"client_id"`
	ExpiresAt     time.Time  `bson:"expires_at"           json:"expires_at"`
	RevokedAt     *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"           json:"created_at"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool { return now.After(t.ExpiresAt) }
func (t *RefreshToken) IsRevoked() bool             { return t.RevokedAt != nil }

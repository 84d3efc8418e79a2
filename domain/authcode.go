package domain

import "time"

// ResponseType is the response_type of an authorization request.
type ResponseType string

const (
	ResponseTypeCode  ResponseType = "code"
	ResponseTypeToken ResponseType = "token"
)

// PKCE challenge methods.
const (
	ChallengeMethodPlain = "plain"
	ChallengeMethodS256  = "S256"
)

// AuthCodeStatus is the lifecycle state of an authorization code record.
type AuthCodeStatus string

const (
	AuthCodeCreated   AuthCodeStatus = "created"
	AuthCodeBound     AuthCodeStatus = "bound"
	AuthCodeExchanged AuthCodeStatus = "exchanged"
	AuthCodeExpired   AuthCodeStatus = "expired"
	AuthCodeRevoked   AuthCodeStatus = "revoked"
)

// AuthCode represents an OAuth 2.0 authorization request and, once the
// end-user is authenticated, the authorization code issued for it.
type AuthCode struct {
	ID           string       `bson:"_id"                  json:"id"`
	ClientID     string       `bson:"client_id"            json:"client_id"`
	Scope        string       `bson:"scope,omitempty"      json:"scope,omitempty"`
	ResponseType ResponseType `bson:"response_type"        json:"response_type"`
	RedirectURI  string       `bson:"redirect_uri"         json:"redirect_uri"`
	State        string       `bson:"state,omitempty"      json:"state,omitempty"`
	UserAgent    string       `bson:"user_agent,omitempty" json:"user_agent,omitempty"`

	CodeChallenge       string `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`

	// Code is the opaque value handed to the client. Assigned when the
	// request is bound to a subject.
	Code   string `bson:"code,omitempty"    json:"-"`
	UserID string `bson:"user_id,omitempty" json:"user_id,omitempty"`

	ExpiresAt   time.Time  `bson:"expires_at"             json:"expires_at"`
	BoundAt     *time.Time `bson:"bound_at,omitempty"     json:"bound_at,omitempty"`
	ExchangedAt *time.Time `bson:"exchanged_at,omitempty" json:"exchanged_at,omitempty"`
	RevokedAt   *time.Time `bson:"revoked_at,omitempty"   json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"             json:"created_at"`
}

// AuthCodeBinding is written to an authorization request once the end-user
// has logged in.
type AuthCodeBinding struct {
	UserID  string
	Scope   string
	Code    string
	BoundAt time.Time
}

// Status derives the lifecycle state at the given instant. Terminal markers
// win over expiry.
func (a *AuthCode) Status(now time.Time) AuthCodeStatus {
	switch {
	case a.RevokedAt != nil:
		return AuthCodeRevoked
	case a.ExchangedAt != nil:
		return AuthCodeExchanged
	case now.After(a.ExpiresAt):
		return AuthCodeExpired
	case a.BoundAt != nil:
		return AuthCodeBound
	default:
		return AuthCodeCreated
	}
}

// IsExpired reports whether the code can no longer be exchanged because of
// its age.
func (a *AuthCode) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

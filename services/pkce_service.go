package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// ValidatePKCEChallenge validates a code verifier against a code challenge
// using the method recorded with the challenge. An empty method means plain.
func ValidatePKCEChallenge(challenge, method, verifier string) bool {
	switch method {
	case "", domain.ChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case domain.ChallengeMethodS256:
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(S256Challenge(verifier))) == 1
	default:
		return false
	}
}

// S256Challenge derives the S256 code challenge of a verifier.
func S256Challenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pilab-dev/shadow-oauth/domain"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrInvalidSignature     = errors.New("invalid token signature")
)

// TokenSigner signs and verifies tokens with a single algorithm and key.
type TokenSigner struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewTokenSigner creates a signer for the algorithm configured in the OAuth
// context. HS* algorithms use the shared secret, RS* the PEM private key.
func NewTokenSigner(octx domain.OAuthContext) (*TokenSigner, error) {
	alg := strings.ToUpper(octx.SigningAlgorithm)
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, octx.SigningAlgorithm)
	}

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if octx.SecretKey == "" {
			return nil, errors.New("secret key is required for HMAC signing")
		}
		key := []byte(octx.SecretKey)

		return &TokenSigner{method: method, signKey: key, verifyKey: key}, nil
	case *jwt.SigningMethodRSA:
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(octx.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
		}

		return &TokenSigner{method: method, signKey: priv, verifyKey: &priv.PublicKey}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

// Algorithm returns the JWA name of the signing algorithm.
func (s *TokenSigner) Algorithm() string {
	return s.method.Alg()
}

// Sign encodes and signs the claims.
func (s *TokenSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(s.method, claims)

	tokenString, err := token.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Parse verifies the signature and algorithm of tokenString and decodes it
// into claims. Registered claims such as exp are not validated here; the
// persisted token record is authoritative for expiry and revocation.
func (s *TokenSigner) Parse(tokenString string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return nil
}

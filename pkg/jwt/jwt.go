// Package jwt provides HS256 token signing and verification for API
// authentication, plus the HTTP middleware that injects verified claims into
// the request context.
package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken      = errors.New("jwt: invalid token")
	ErrExpiredToken      = errors.New("jwt: token is expired")
	ErrInvalidSignature  = errors.New("jwt: invalid signature")
	ErrMissingSigningKey = errors.New("jwt: missing signing key")
)

// Token purposes. A token issued for one purpose is never accepted for
// another.
const (
	PurposeAccess        = "access"
	PurposePasswordReset = "password_reset"
)

// Claims is the token payload. ExpiresAt and IssuedAt are Unix timestamps.
type Claims struct {
	UserID    string `json:"sub"`
	Email     string `json:"email,omitempty"`
	Purpose   string `json:"purpose"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

type header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// Service signs and verifies tokens with a single HMAC-SHA256 key.
type Service struct {
	signingKey []byte
}

// New creates a token service. The key should be at least 32 bytes.
func New(signingKey string) (*Service, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	return &Service{signingKey: []byte(signingKey)}, nil
}

// Generate signs claims into a compact JWT. IssuedAt is stamped here.
func (s *Service) Generate(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = now.Unix()
	claims.ExpiresAt = now.Add(ttl).Unix()

	headerJSON, err := json.Marshal(header{Type: "JWT", Algorithm: "HS256"})
	if err != nil {
		return "", fmt.Errorf("jwt: failed to marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("jwt: failed to marshal claims: %w", err)
	}

	payload := encode(headerJSON) + "." + encode(claimsJSON)
	return payload + "." + s.sign(payload), nil
}

// Parse verifies the signature, algorithm and expiry and returns the claims.
// Purpose checking is the caller's responsibility.
func (s *Service) Parse(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	payload := parts[0] + "." + parts[1]
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(s.sign(payload))) != 1 {
		return nil, ErrInvalidSignature
	}

	headerJSON, err := decode(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var h header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, ErrInvalidToken
	}
	// Reject anything but HS256 to prevent algorithm confusion.
	if h.Algorithm != "HS256" {
		return nil, ErrInvalidToken
	}

	claimsJSON, err := decode(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt > 0 && time.Now().Unix() > claims.ExpiresAt {
		return nil, ErrExpiredToken
	}
	return &claims, nil
}

func (s *Service) sign(payload string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return encode(h.Sum(nil))
}

func encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

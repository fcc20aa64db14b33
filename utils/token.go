package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Purpose scopes a signed token to the flow that issued it.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeConfirm Purpose = "confirm"
	PurposeReset   Purpose = "reset"
	PurposeEmail   Purpose = "email"
)

// Claims carried by every token.
type Claims struct {
	UserID  uint    `json:"user_id"`
	Purpose Purpose `json:"purpose"`
	Email   string  `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256 tokens.
type TokenSigner struct {
	secret    []byte
	ttl       time.Duration
	accessTTL time.Duration
}

// NewTokenSigner creates a signer. ttl is the default lifetime of
// confirmation, reset and email tokens, accessTTL that of login tokens.
func NewTokenSigner(secret string, ttl, accessTTL time.Duration) *TokenSigner {
	if secret == "" {
		secret = "your-secret-key" // Default secret (not recommended for production)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if accessTTL <= 0 {
		accessTTL = 7 * 24 * time.Hour
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, accessTTL: accessTTL}
}

// GenerateToken creates a new access token for a user
func (s *TokenSigner) GenerateToken(userID uint) (string, error) {
	return s.Sign(userID, PurposeAccess, "", s.accessTTL)
}

// ParseToken returns the claims of a valid access token.
func (s *TokenSigner) ParseToken(token string) (*Claims, bool) {
	return s.Verify(token, PurposeAccess)
}

// Sign issues a token for userID. A zero expiration uses the default
// lifetime; email is only carried by email change tokens.
func (s *TokenSigner) Sign(userID uint, purpose Purpose, email string, expiration time.Duration) (string, error) {
	if expiration <= 0 {
		expiration = s.ttl
	}
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		Purpose: purpose,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
	}

	// Sign and get the complete encoded token as a string
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, expiry and purpose. Any failure yields false;
// callers never learn which check failed.
func (s *TokenSigner) Verify(token string, purpose Purpose) (*Claims, bool) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.Purpose != purpose || claims.UserID == 0 {
		return nil, false
	}
	if purpose == PurposeEmail && claims.Email == "" {
		return nil, false
	}
	return claims, true
}

// Package auth issues and verifies admin credentials: short-lived JWT tokens
// for the socket handshake and bcrypt hashes for stored passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"examboard/pkg/interfaces"
)

// Claims carries the admin identity inside the token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a manager signing with secret. Tokens expire after
// ttl.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token secret cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}, nil
}

// IssueToken creates a signed token for username.
func (tm *TokenManager) IssueToken(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
		Username: username,
	})

	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token, returning the admin username it
// was issued to. Any parse, signature or expiry failure maps to
// interfaces.ErrUnauthorized so callers never leak verification detail.
func (tm *TokenManager) VerifyToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return tm.secret, nil
		})
	if err != nil || !token.Valid {
		return "", interfaces.ErrUnauthorized
	}
	if claims.Username == "" {
		return "", interfaces.ErrUnauthorized
	}
	return claims.Username, nil
}

// Package identity is the authentication boundary: it turns a caller
// token into a stable user id. The repositories never read caller
// identity from ambient state; they take it as an argument, and this
// package is how the layer above obtains it.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Provider resolves a bearer token to a user id.
type Provider interface {
	UserID(token string) (string, error)
}

// Claims is the token payload: a user id plus the registered set.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 tokens signed with a shared secret.
type JWTProvider struct {
	secret []byte
}

func NewJWT(secret []byte) *JWTProvider { return &JWTProvider{secret: secret} }

func (p *JWTProvider) UserID(tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: token has no user id", ErrUnauthenticated)
	}
	return claims.UserID, nil
}

// Sign issues a token for userID, valid for ttl. The data-access core
// only verifies; issuing lives here so tests and tooling share one
// claim shape.
func (p *JWTProvider) Sign(userID, email string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

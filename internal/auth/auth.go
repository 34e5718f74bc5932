// Package auth turns bearer tokens into verified identities.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v4"
)

var ErrSubjectEmpty = errors.New("token subject is empty")

// JWTAuth mints and verifies HS256 identity tokens.
type JWTAuth struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

type Claims struct {
	IsAdmin bool `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

func NewJWTAuth(secret []byte, opts ...Option) *JWTAuth {
	a := &JWTAuth{
		secret:   secret,
		tokenTTL: 24 * time.Hour,
		issuer:   "fundledger",
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type Option func(a *JWTAuth)

func WithIssuer(issuer string) Option {
	return func(a *JWTAuth) {
		a.issuer = issuer
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(a *JWTAuth) {
		a.tokenTTL = ttl
	}
}

func WithClock(clock func() time.Time) Option {
	return func(a *JWTAuth) {
		a.now = clock
	}
}

// CreateJWTString signs a token asserting identity.
func (a *JWTAuth) CreateJWTString(identity accounts.Identity) (string, error) {
	if identity.UserID == "" {
		return "", ErrSubjectEmpty
	}

	now := a.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		IsAdmin: identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	})

	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("token.SignedString: %w", err)
	}

	return tokenString, nil
}

// Verifier returns the jwtauth verifier for tokens signed with the same secret.
func (a *JWTAuth) Verifier() *jwtauth.JWTAuth {
	return jwtauth.New("HS256", a.secret, nil)
}

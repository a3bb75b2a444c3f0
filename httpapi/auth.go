// Package httpapi exposes the REST resource contracts of spec section 6.4
// as echo handlers, reusing the teacher's dual API-key/JWT auth shape
// (api/rest.go's APIKeyAuth, api/jwt.go's echo-jwt wiring, auth/token.go's
// Claims) generalized to an actor-id string instead of a user account.
package httpapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the authenticated actor's identity through a JWT bearer
// token. The spec has no user-account concept (only the actor-id string
// recorded on audit entries), so Claims is deliberately thinner than the
// teacher's auth.Claims: no roles, no username, just who is acting.
type Claims struct {
	ActorID string `json:"actor_id"`
	jwt.RegisteredClaims
}

// TokenService issues and validates the bearer tokens accepted by the JWT
// auth scheme. Grounded on auth/token.go's TokenService, trimmed to the
// single GenerateToken/ValidateToken pair this surface needs.
type TokenService struct {
	secret     []byte
	expiration time.Duration
	issuer     string
}

// NewTokenService builds a TokenService signing with the given HMAC secret.
func NewTokenService(secret string, expiration time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), expiration: expiration, issuer: "eve.evalgo.org/workflow"}
}

// GenerateToken issues a bearer token identifying actorID.
func (s *TokenService) GenerateToken(actorID string) (string, error) {
	now := time.Now()
	claims := Claims{
		ActorID: actorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   actorID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("httpapi: invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("httpapi: invalid token")
	}
	return claims, nil
}

package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ActorClaims are the JWT claims the session provider issues for dashboard
// and service callers. Only Subject and Role are consumed here.
type ActorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenVerifier parses and validates actor session tokens signed with a
// shared HMAC secret.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a TokenVerifier for the given shared secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates a bearer token, returning the Actor it carries.
func (v *TokenVerifier) Verify(tokenStr string) (Actor, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&ActorClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Actor{}, fmt.Errorf("verify actor token: %w", err)
	}
	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return Actor{}, fmt.Errorf("invalid actor token claims")
	}
	if claims.Subject == "" || claims.Role == "" {
		return Actor{}, fmt.Errorf("actor token missing subject or role")
	}
	return Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// Issue creates a signed actor token. Used by the CLI and by tests; in
// production the session provider issues tokens with the same secret.
func (v *TokenVerifier) Issue(actor Actor, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		Role: actor.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign actor token: %w", err)
	}
	return signed, nil
}

// Package middleware holds request middleware specific to the provio
// API: actor authentication and provisioning rate limits.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/provio-systems/provio/pkg/httputil"
)

type contextKey string

const actorIDKey contextKey = "actor_id"

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload the API accepts. The subject identifies the
// owner all provisioned credentials are scoped to.
type Claims struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies bearer tokens and injects the actor id into
// the request context.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(jwtSecret)}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header")
			return
		}

		claims, err := m.validate(parts[1])
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), actorIDKey, claims.ActorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (m *AuthMiddleware) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ActorID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetActorID returns the authenticated actor id from ctx, or "" when
// the request did not pass RequireAuth.
func GetActorID(ctx context.Context) string {
	if id, ok := ctx.Value(actorIDKey).(string); ok {
		return id
	}
	return ""
}

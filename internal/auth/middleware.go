package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the request header for API key authentication
	APIKeyHeader = "X-Api-Key"

	// userContextKey is the context key for storing the authenticated user
	userContextKey contextKey = "user"
)

// UserInfo holds the identity extracted from authentication
type UserInfo struct {
	Subject string
	Name    string
	Role    string
}

// Middleware authenticates requests with either the service API key or a
// bearer JWT. The API key grants admin access; JWT access is governed by
// the role claim.
type Middleware struct {
	apiKey string
	jwt    *JWTManager
}

// NewMiddleware creates authentication middleware. An empty apiKey disables
// API key auth; a nil manager disables JWT auth.
func NewMiddleware(apiKey string, jwtManager *JWTManager) *Middleware {
	return &Middleware{apiKey: apiKey, jwt: jwtManager}
}

// Authenticate resolves the request identity without enforcing a role. A
// wrong credential is still rejected; a missing one passes through
// anonymously.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok, err := m.identify(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if ok {
			r = r.WithContext(context.WithValue(r.Context(), userContextKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests that do not carry admin credentials.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok, err := m.identify(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if !ok {
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}
		if user.Role != RoleAdmin {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), userContextKey, user))
		next.ServeHTTP(w, r)
	})
}

// identify extracts and validates credentials from the request. It reports
// whether any credential was present; an invalid credential is an error.
func (m *Middleware) identify(r *http.Request) (*UserInfo, bool, error) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		if m.apiKey == "" {
			return nil, false, ErrInvalidToken
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
			return nil, false, ErrInvalidToken
		}
		return &UserInfo{Subject: "api-key", Role: RoleAdmin}, true, nil
	}

	authz := r.Header.Get("Authorization")
	if authz == "" {
		return nil, false, nil
	}
	token, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok {
		return nil, false, ErrInvalidToken
	}
	if m.jwt == nil {
		return nil, false, ErrInvalidToken
	}

	claims, err := m.jwt.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, false, err
	}
	return &UserInfo{
		Subject: claims.Subject,
		Name:    claims.Name,
		Role:    claims.Role,
	}, true, nil
}

// UserFromContext extracts the authenticated user from context
func UserFromContext(ctx context.Context) (*UserInfo, bool) {
	user, ok := ctx.Value(userContextKey).(*UserInfo)
	return user, ok
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/typeroom/internal/api/apierr"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/services/auth"
)

type contextKey string

const identityContextKey contextKey = "identity"

// TokenCookie is the cookie the browser client stores its identity token in
const TokenCookie = "authToken"

// Auth creates authentication middleware
func Auth(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth extracts the identity if present but doesn't require it
func OptionalAuth(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := ExtractToken(r); token != "" {
				if identity, err := verifier.Verify(r.Context(), token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), identityContextKey, identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken extracts the identity token from the request
func ExtractToken(r *http.Request) string {
	// Check Authorization header first
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// Fall back to cookie
	cookie, err := r.Cookie(TokenCookie)
	if err == nil {
		return cookie.Value
	}

	return ""
}

// GetIdentity returns the verified identity from the request context
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

// MustGetIdentity returns the verified identity or panics
func MustGetIdentity(ctx context.Context) model.Identity {
	identity, ok := GetIdentity(ctx)
	if !ok {
		panic("no identity in context - auth middleware not applied?")
	}
	return identity
}

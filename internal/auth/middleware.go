package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/entity-auth/internal/apperror"
)

// TokenCookie is the HttpOnly cookie that carries the signed token.
const TokenCookie = "token"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// Only this package can create a key of type contextKey, so only this package
// can read or write the claims stored in the context.
type contextKey string

const claimsKey contextKey = "claims"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the token from the "token" HttpOnly cookie (or an
// "Authorization: Bearer" header for non-browser clients), decodes it and
// stores the claims in the request context. A missing or invalid token stops
// the chain with 401; an expired one is reported as "token_expired" so the
// client knows to re-authenticate rather than give up.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *SignedTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractClaims(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				if errors.Is(err, apperror.ErrTokenExpired) {
					w.Write([]byte(`{"error":"token_expired","message":"authentication token has expired"}`))
					return
				}
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the decoded token claims from the request
// context. Returns (nil, false) on an anonymous request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil && c.UserID != ""
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Usage in handlers:
//
//	userID, ok := auth.UserIDFromContext(r.Context())
//	if !ok {
//	    // anonymous user
//	}
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", false
	}
	return c.UserID, true
}

// extractClaims prefers the cookie and falls back to a bearer header.
func extractClaims(r *http.Request, tokens *SignedTokens) (*Claims, error) {
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return tokens.Decode(r.Context(), cookie.Value)
	}

	header := r.Header.Get("Authorization")
	if raw, ok := strings.CutPrefix(header, "Bearer "); ok && raw != "" {
		return tokens.Decode(r.Context(), strings.TrimSpace(raw))
	}

	return nil, http.ErrNoCookie
}

// Package middleware provides HTTP middleware for the ZipCase API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Context key type for storing the authenticated user ID
type contextKey string

const userIDContextKey contextKey = "userID"

// TokenVerifier validates a bearer token and returns the user ID it
// carries. *auth.TokenService implements it.
type TokenVerifier interface {
	Verify(tokenString string) (string, error)
}

// UserID retrieves the authenticated user ID from the request context.
//
// This should only be called from handler code that runs after the Auth
// middleware has processed the request; on routes without Auth it
// returns "" and false.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// WithUserID returns a context carrying the given user ID, as the Auth
// middleware would set it. Intended for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// Auth is a middleware that validates Bearer tokens in the Authorization
// header. If valid, the user ID from the token's subject is stored in the
// request context. If invalid or missing, returns 401 Unauthorized.
//
// Only the presence and validity of the token are logged upstream; the
// token itself never is.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				unauthorized(w, "Authorization header required")
				return
			}

			userID, err := verifier.Verify(tokenString)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// unauthorized writes a 401 response in the API's error body shape.
// Local to the package so middleware does not depend on handlers.
func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": detail})
}

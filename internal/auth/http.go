// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Verifies the bearer token, resolves the session scope and adds it to the context

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/session"
)

// Resolver maps a verified principal id to a request scope.
// *session.Binder implements it.
type Resolver interface {
	Resolve(ctx context.Context, principalID string) (*session.Scope, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates
// JWT tokens. The principal is resolved through the binder so inactive
// accounts and clients are rejected on every request, not only at login.
func HTTPAuthMiddleware(binder Resolver, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeError(w, http.StatusUnauthorized, errMsg)
				return
			}

			principalID, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, fault.Message(err))
				return
			}

			scope, err := binder.Resolve(r.Context(), principalID)
			if err != nil {
				kind := fault.KindOf(err)
				if kind == fault.Internal {
					logger.Error("resolving principal", "principal_id", principalID, "error", err)
				}
				writeError(w, fault.HTTPStatus(kind), fault.Message(err))
				return
			}

			authCtx := &AuthContext{PrincipalID: principalID, Scope: scope}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

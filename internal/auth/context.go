// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating the resolved scope via context

package auth

import (
	"context"

	"github.com/2389/tower-gateway/internal/session"
)

// AuthContext holds the authenticated identity of a request.
type AuthContext struct {
	PrincipalID string         // account id from the token
	Scope       *session.Scope // resolved account and client
}

// ClientID returns the id of the caller's client.
func (a *AuthContext) ClientID() string {
	if a == nil || a.Scope == nil || a.Scope.Client == nil {
		return ""
	}
	return a.Scope.Client.ID
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}

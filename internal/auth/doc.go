// Package auth provides bearer token authentication for tower-gateway.
//
// # Tokens
//
// Accounts authenticate with HS256 JWTs signed with the configured
// jwt_secret. The sub claim carries the account id; iss must be
// "tower-gateway" and exp is required.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware verifies the Authorization header, resolves the account
// and client through a session.Binder, and stores the result in the request
// context:
//
//	authCtx := auth.FromContext(r.Context())
//	if authCtx == nil {
//	    // not authenticated
//	}
//	scope := authCtx.Scope
//
// Handlers never accept a client id from the request; the scope is the only
// source of the tenant to operate on.
//
// # Logout
//
// Tokens are stateless. Logout is acknowledged and the client discards the
// token; it stays valid until exp.
package auth

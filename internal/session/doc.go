// Package session binds an authenticated principal to its client.
//
// A Scope is the only way request handlers reach a tenant store: the client,
// and therefore the tenant id, always comes from the registry record of the
// authenticated account and never from request input.
package session

// Package server assembles a running tower-gateway.
//
// New opens the central registry and the tenant store manager, builds the
// identity, session and records services on top of them and registers the
// HTTP API. Run serves until its context is canceled and then shuts down,
// closing pooled tenant stores and the registry.
package server

// ABOUTME: Binds an authenticated principal to its account and client
// ABOUTME: A Scope is the only way request code can reach a tenant store handle

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/store"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

// Resolution errors. All of them reject the request as unauthorized.
var (
	ErrPrincipalNotFound = fault.New(fault.Unauthorized, "principal not found")
	ErrClientInactive    = fault.New(fault.Unauthorized, "client is inactive")
	ErrAccountInactive   = fault.New(fault.Unauthorized, "account is inactive")
)

// ErrTenantUnavailable is returned when a resolved client's store is missing.
var ErrTenantUnavailable = fault.New(fault.StoreUnavailable, "tenant store unavailable")

// Lookup is the part of the registry the binder reads.
type Lookup interface {
	GetAccount(ctx context.Context, id string) (*store.Account, error)
	GetClient(ctx context.Context, id string) (*store.Client, error)
}

// TenantOpener opens existing tenant stores.
type TenantOpener interface {
	Open(ctx context.Context, tenantID string) (*tenantdb.Handle, error)
}

// Binder resolves principals into request scopes.
type Binder struct {
	registry Lookup
	tenants  TenantOpener
	logger   *slog.Logger
}

// NewBinder creates a Binder.
func NewBinder(registry Lookup, tenants TenantOpener, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{
		registry: registry,
		tenants:  tenants,
		logger:   logger.With("component", "session"),
	}
}

// Resolve maps a principal id (an account id) to its account and client.
// Inactive accounts and clients are rejected.
func (b *Binder) Resolve(ctx context.Context, principalID string) (*Scope, error) {
	if principalID == "" {
		return nil, ErrPrincipalNotFound
	}

	account, err := b.registry.GetAccount(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}

	client, err := b.registry.GetClient(ctx, account.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			b.logger.Warn("account without client", "account_id", account.ID, "client_id", account.ClientID)
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}

	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	if !client.IsActive {
		return nil, ErrClientInactive
	}

	return &Scope{Account: account, Client: client, tenants: b.tenants}, nil
}

// Scope is a resolved (account, client) pair for one request.
type Scope struct {
	Account *store.Account
	Client  *store.Client

	tenants TenantOpener
	handle  *tenantdb.Handle
}

// Tenant opens the store of the scope's client. The handle is cached for
// the lifetime of the scope.
func (s *Scope) Tenant(ctx context.Context) (*tenantdb.Handle, error) {
	if s.handle != nil {
		return s.handle, nil
	}
	if s.tenants == nil {
		return nil, ErrTenantUnavailable
	}
	h, err := s.tenants.Open(ctx, s.Client.TenantID)
	if err != nil {
		if errors.Is(err, tenantdb.ErrTenantNotProvisioned) {
			return nil, fmt.Errorf("%w: %w", ErrTenantUnavailable, err)
		}
		return nil, err
	}
	s.handle = h
	return h, nil
}

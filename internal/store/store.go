// ABOUTME: Registry types and interfaces for clients (tenants) and their accounts
// ABOUTME: The central registry is the only place clients, accounts and tenant ids are recorded

package store

import (
	"context"
	"time"

	"github.com/2389/tower-gateway/internal/fault"
)

// Registry errors
var (
	ErrClientNotFound       = fault.New(fault.NotFound, "client not found")
	ErrAccountNotFound      = fault.New(fault.NotFound, "account not found")
	ErrClientAlreadyExists  = fault.New(fault.Conflict, "a client with this email already exists")
	ErrAccountAlreadyExists = fault.New(fault.Conflict, "an account with this email already exists")
	ErrTenantIDTaken        = fault.New(fault.Conflict, "tenant id already assigned")
)

// Client is a registered organization. Each client owns exactly one tenant store.
type Client struct {
	ID        string
	Name      string
	Email     string
	TenantID  string // immutable once created
	CreatedAt time.Time
	IsActive  bool
}

// Account is an end-user bound to exactly one client.
type Account struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string // bcrypt hash, never the raw credential
	ProfilePicture string // optional reference, empty when unset
	CreatedAt      time.Time
	IsActive       bool
	ClientID       string // immutable once created
}

// ProvisionFunc runs inside the client registration transaction. Returning an
// error rolls the registration back.
type ProvisionFunc func(ctx context.Context, client *Client) error

// ClientStore persists clients.
type ClientStore interface {
	// CreateClient inserts client and, when owner is non-nil, its first account
	// in one transaction. provision runs after the inserts and before commit.
	CreateClient(ctx context.Context, client *Client, owner *Account, provision ProvisionFunc) error
	GetClient(ctx context.Context, id string) (*Client, error)
	GetClientByEmail(ctx context.Context, email string) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)
	SetClientActive(ctx context.Context, id string, active bool) error
	// DeleteClient removes the client and, by cascade, all of its accounts.
	DeleteClient(ctx context.Context, id string) error
}

// AccountUpdate lists the mutable profile columns. Nil fields are left unchanged.
type AccountUpdate struct {
	Username *string
	Email    *string
}

// AccountStore persists accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	ListAccountsByClient(ctx context.Context, clientID string) ([]*Account, error)
	UpdateAccount(ctx context.Context, id string, update AccountUpdate) error
	UpdateAccountPassword(ctx context.Context, id, passwordHash string) error
	UpdateAccountProfilePicture(ctx context.Context, id, ref string) error
	SetAccountActive(ctx context.Context, id string, active bool) error
}

// Registry is the complete central registry.
type Registry interface {
	ClientStore
	AccountStore

	// Close releases any resources held by the registry
	Close() error
}

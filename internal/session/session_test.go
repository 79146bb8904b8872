// ABOUTME: Tests for principal resolution and tenant scoping
// ABOUTME: Uses the in-memory registry and real tenant stores under t.TempDir()

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/store"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

type fixture struct {
	registry *store.MockStore
	tenants  *tenantdb.Manager
	binder   *Binder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tenants, err := tenantdb.New(tenantdb.Options{Root: t.TempDir(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { tenants.Close() })

	registry := store.NewMockStore()
	return &fixture{
		registry: registry,
		tenants:  tenants,
		binder:   NewBinder(registry, tenants, nil),
	}
}

func (f *fixture) addClient(t *testing.T, clientID, accountID string, provision bool) {
	t.Helper()
	ctx := context.Background()

	client := &store.Client{
		ID:        clientID,
		Name:      clientID,
		Email:     clientID + "@example.com",
		TenantID:  tenantdb.NewTenantID(clientID),
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	owner := &store.Account{
		ID:           accountID,
		Username:     accountID,
		Email:        accountID + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
		ClientID:     clientID,
	}
	err := f.registry.CreateClient(ctx, client, owner, func(ctx context.Context, c *store.Client) error {
		if !provision {
			return nil
		}
		_, err := f.tenants.Provision(ctx, c.TenantID)
		return err
	})
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, "c1", "a1", true)

	scope, err := f.binder.Resolve(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", scope.Account.ID)
	assert.Equal(t, "c1", scope.Client.ID)

	h, err := scope.Tenant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client_c1", h.TenantID())
}

func TestResolve_UnknownPrincipal(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"", "missing"} {
		_, err := f.binder.Resolve(context.Background(), id)
		assert.ErrorIs(t, err, ErrPrincipalNotFound, "principal %q", id)
		assert.Equal(t, fault.Unauthorized, fault.KindOf(err))
	}
}

func TestResolve_Inactive(t *testing.T) {
	ctx := context.Background()

	t.Run("account", func(t *testing.T) {
		f := newFixture(t)
		f.addClient(t, "c1", "a1", true)
		require.NoError(t, f.registry.SetAccountActive(ctx, "a1", false))

		_, err := f.binder.Resolve(ctx, "a1")
		assert.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("client", func(t *testing.T) {
		f := newFixture(t)
		f.addClient(t, "c1", "a1", true)
		require.NoError(t, f.registry.SetClientActive(ctx, "c1", false))

		_, err := f.binder.Resolve(ctx, "a1")
		assert.ErrorIs(t, err, ErrClientInactive)
	})
}

func TestResolve_RegistryError(t *testing.T) {
	boom := errors.New("registry down")
	b := NewBinder(failingLookup{err: boom}, nil, nil)

	_, err := b.Resolve(context.Background(), "a1")
	assert.ErrorIs(t, err, boom)
}

func TestScope_TenantMissing(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, "c1", "a1", false)

	scope, err := f.binder.Resolve(context.Background(), "a1")
	require.NoError(t, err)

	_, err = scope.Tenant(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTenantUnavailable)
	assert.ErrorIs(t, err, tenantdb.ErrTenantNotProvisioned)
	assert.Equal(t, fault.StoreUnavailable, fault.KindOf(err))
}

func TestScope_TenantsAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, "c1", "a1", true)
	f.addClient(t, "c2", "a2", true)
	ctx := context.Background()

	s1, err := f.binder.Resolve(ctx, "a1")
	require.NoError(t, err)
	s2, err := f.binder.Resolve(ctx, "a2")
	require.NoError(t, err)

	h1, err := s1.Tenant(ctx)
	require.NoError(t, err)
	h2, err := s2.Tenant(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, h1.TenantID(), h2.TenantID())
}

type failingLookup struct{ err error }

func (f failingLookup) GetAccount(context.Context, string) (*store.Account, error) { return nil, f.err }
func (f failingLookup) GetClient(context.Context, string) (*store.Client, error)   { return nil, f.err }

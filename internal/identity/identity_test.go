// ABOUTME: Tests for registration, authentication and client lifecycle
// ABOUTME: Runs against the in-memory registry and real tenant stores

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/store"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

func newTestService(t *testing.T) (*Service, *store.MockStore, *tenantdb.Manager) {
	t.Helper()

	tenants, err := tenantdb.New(tenantdb.Options{Root: t.TempDir(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { tenants.Close() })

	registry := store.NewMockStore()
	svc := New(registry, tenants, WithHasher(NewBcryptHasher(bcrypt.MinCost)))
	return svc, registry, tenants
}

func registration(prefix string) Registration {
	return Registration{
		ClientName:  prefix + " Inc",
		ClientEmail: "contact@" + prefix + ".example.com",
		Username:    prefix + "-admin",
		Email:       "admin@" + prefix + ".example.com",
		Password:    "correct horse battery staple",
	}
}

func TestRegister(t *testing.T) {
	svc, registry, tenants := newTestService(t)
	ctx := context.Background()

	client, account, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(client.TenantID, "client_"))
	assert.NotContains(t, client.TenantID, "-")
	assert.True(t, tenants.Exists(client.TenantID))
	assert.Equal(t, client.ID, account.ClientID)
	assert.NotEqual(t, "correct horse battery staple", account.PasswordHash)

	stored, err := registry.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@acme.example.com", stored.Email)
}

func TestRegister_NormalizesEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	r := registration("acme")
	r.Email = "  Admin@ACME.example.com "
	_, account, err := svc.Register(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "admin@acme.example.com", account.Email)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, tenants := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(*Registration){
		"client name":  func(r *Registration) { r.ClientName = " " },
		"client email": func(r *Registration) { r.ClientEmail = "" },
		"username":     func(r *Registration) { r.Username = "" },
		"password":     func(r *Registration) { r.Password = "" },
		"bad email":    func(r *Registration) { r.Email = "not-an-email" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := registration("acme")
			mutate(&r)
			_, _, err := svc.Register(ctx, r)
			require.Error(t, err)
			assert.Equal(t, fault.Validation, fault.KindOf(err))
		})
	}

	ids, err := tenants.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRegister_DuplicateClientEmail(t *testing.T) {
	svc, _, tenants := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	r := registration("other")
	r.ClientEmail = "contact@acme.example.com"
	_, _, err = svc.Register(ctx, r)
	assert.ErrorIs(t, err, store.ErrClientAlreadyExists)

	ids, err := tenants.List()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRegister_DuplicateAccountEmailLeavesNothing(t *testing.T) {
	svc, registry, tenants := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	r := registration("other")
	r.Email = "admin@acme.example.com"
	_, _, err = svc.Register(ctx, r)
	assert.ErrorIs(t, err, store.ErrAccountAlreadyExists)

	_, err = registry.GetClientByEmail(ctx, "contact@other.example.com")
	assert.ErrorIs(t, err, store.ErrClientNotFound)
	ids, err := tenants.List()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRegister_CommitFailureDestroysStore(t *testing.T) {
	svc, registry, tenants := newTestService(t)
	registry.CommitErr = errors.New("commit failed")

	_, _, err := svc.Register(context.Background(), registration("acme"))
	require.Error(t, err)

	ids, err := tenants.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRegisterClientAndAccount(t *testing.T) {
	svc, _, tenants := newTestService(t)
	ctx := context.Background()

	client, err := svc.RegisterClient(ctx, "Acme", "contact@acme.example.com")
	require.NoError(t, err)
	assert.True(t, tenants.Exists(client.TenantID))

	_, err = svc.RegisterClient(ctx, "Acme 2", "CONTACT@acme.example.com")
	assert.ErrorIs(t, err, store.ErrClientAlreadyExists)

	account, err := svc.RegisterAccount(ctx, "bob", "bob@acme.example.com", "pw", client.ID)
	require.NoError(t, err)
	assert.Equal(t, client.ID, account.ClientID)

	_, err = svc.RegisterAccount(ctx, "bob2", "bob@acme.example.com", "pw", client.ID)
	assert.ErrorIs(t, err, store.ErrAccountAlreadyExists)

	_, err = svc.RegisterAccount(ctx, "eve", "eve@acme.example.com", "pw", "missing")
	assert.ErrorIs(t, err, store.ErrClientNotFound)
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	client, account, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	gotAccount, gotClient, err := svc.Authenticate(ctx, "ADMIN@acme.example.com", "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, account.ID, gotAccount.ID)
	assert.Equal(t, client.ID, gotClient.ID)

	_, _, err = svc.Authenticate(ctx, "admin@acme.example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Authenticate(ctx, "nobody@acme.example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Authenticate(ctx, "", "")
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestAuthenticate_Inactive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	client, account, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateClient(ctx, client.ID))
	_, _, err = svc.Authenticate(ctx, account.Email, "correct horse battery staple")
	assert.ErrorIs(t, err, session.ErrClientInactive)

	require.NoError(t, svc.ActivateClient(ctx, client.ID))
	_, _, err = svc.Authenticate(ctx, account.Email, "correct horse battery staple")
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateAccount(ctx, account.ID))
	_, _, err = svc.Authenticate(ctx, account.Email, "correct horse battery staple")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ActivateAccount(ctx, account.ID))
	_, _, err = svc.Authenticate(ctx, account.Email, "correct horse battery staple")
	assert.NoError(t, err)
}

func TestUpdateAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, a1, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)
	_, a2, err := svc.Register(ctx, registration("beta"))
	require.NoError(t, err)

	name := "renamed"
	updated, err := svc.UpdateAccount(ctx, a1.ID, AccountPatch{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Username)
	assert.Equal(t, a1.Email, updated.Email)

	taken := strings.ToUpper(a2.Email)
	_, err = svc.UpdateAccount(ctx, a1.ID, AccountPatch{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailInUse)

	own := a1.Email
	_, err = svc.UpdateAccount(ctx, a1.ID, AccountPatch{Email: &own})
	assert.NoError(t, err)

	fresh := "new@acme.example.com"
	updated, err = svc.UpdateAccount(ctx, a1.ID, AccountPatch{Email: &fresh})
	require.NoError(t, err)
	assert.Equal(t, fresh, updated.Email)

	empty := ""
	_, err = svc.UpdateAccount(ctx, a1.ID, AccountPatch{Username: &empty})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = svc.UpdateAccount(ctx, "missing", AccountPatch{Username: &name})
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, account, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, account.ID, "wrong", "next-password")
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	require.NoError(t, svc.ChangePassword(ctx, account.ID, "correct horse battery staple", "next-password"))

	_, _, err = svc.Authenticate(ctx, account.Email, "correct horse battery staple")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Authenticate(ctx, account.Email, "next-password")
	assert.NoError(t, err)
}

func TestSetProfilePicture(t *testing.T) {
	svc, registry, _ := newTestService(t)
	ctx := context.Background()

	_, account, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	require.NoError(t, svc.SetProfilePicture(ctx, account.ID, "/api/profile/picture/a.png"))
	got, err := registry.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "/api/profile/picture/a.png", got.ProfilePicture)

	assert.ErrorIs(t, svc.SetProfilePicture(ctx, "missing", "x"), store.ErrAccountNotFound)
}

func TestDeleteClient(t *testing.T) {
	svc, registry, tenants := newTestService(t)
	ctx := context.Background()

	client, account, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteClient(ctx, client.ID))

	assert.False(t, tenants.Exists(client.TenantID))
	_, err = tenants.Open(ctx, client.TenantID)
	assert.ErrorIs(t, err, tenantdb.ErrTenantNotProvisioned)
	assert.False(t, tenants.Exists(client.TenantID), "open must not recreate the store")
	_, err = registry.GetAccount(ctx, account.ID)
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
	assert.ErrorIs(t, svc.DeleteClient(ctx, client.ID), store.ErrClientNotFound)
}

func TestReconcile(t *testing.T) {
	svc, _, tenants := newTestService(t)
	ctx := context.Background()

	client, _, err := svc.Register(ctx, registration("acme"))
	require.NoError(t, err)
	keep, _, err := svc.Register(ctx, registration("beta"))
	require.NoError(t, err)

	_, err = tenants.Destroy(ctx, client.TenantID)
	require.NoError(t, err)
	_, err = tenants.Provision(ctx, "client_orphan")
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{client.TenantID}, report.Provisioned)
	assert.Equal(t, []string{"client_orphan"}, report.Orphans)
	assert.True(t, tenants.Exists(client.TenantID))
	assert.True(t, tenants.Exists(keep.TenantID))

	report, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Provisioned)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "secret"))
	assert.ErrorIs(t, h.Compare(hash, "other"), ErrInvalidCredentials)

	_, err = h.Hash(strings.Repeat("x", 100))
	assert.Equal(t, fault.Validation, fault.KindOf(err), fmt.Sprint(err))
}

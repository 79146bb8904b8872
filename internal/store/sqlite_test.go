// ABOUTME: Tests for the SQLite registry implementation
// ABOUTME: Covers registration atomicity, uniqueness, cascade delete and account updates

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tower-gateway/internal/fault"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testClient(id, email string) *Client {
	return &Client{
		ID:        id,
		Name:      "Client " + id,
		Email:     email,
		TenantID:  "client_" + id,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		IsActive:  true,
	}
}

func testAccount(id, email, clientID string) *Account {
	return &Account{
		ID:           id,
		Username:     "user-" + id,
		Email:        email,
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		IsActive:     true,
		ClientID:     clientID,
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "registry.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateClient_WithOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testClient("c1", "org@example.com")
	a := testAccount("a1", "owner@example.com", "c1")

	var provisioned string
	err := s.CreateClient(ctx, c, a, func(_ context.Context, client *Client) error {
		provisioned = client.TenantID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "client_c1", provisioned)

	got, err := s.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.Email, got.Email)
	assert.Equal(t, c.TenantID, got.TenantID)
	assert.True(t, got.IsActive)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))

	acct, err := s.GetAccountByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, "c1", acct.ClientID)
	assert.Empty(t, acct.ProfilePicture)
}

func TestCreateClient_ProvisionFailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("disk full")
	err := s.CreateClient(ctx, testClient("c1", "org@example.com"), testAccount("a1", "owner@example.com", "c1"),
		func(context.Context, *Client) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = s.GetClient(ctx, "c1")
	assert.ErrorIs(t, err, ErrClientNotFound)
	_, err = s.GetAccountByEmail(ctx, "owner@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateClient_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, testClient("c1", "org@example.com"), nil, nil))

	err := s.CreateClient(ctx, testClient("c2", "org@example.com"), nil, nil)
	assert.ErrorIs(t, err, ErrClientAlreadyExists)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestCreateClient_DuplicateTenantID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), nil, nil))

	dup := testClient("c2", "b@example.com")
	dup.TenantID = "client_c1"
	assert.ErrorIs(t, s.CreateClient(ctx, dup, nil, nil), ErrTenantIDTaken)
}

func TestCreateClient_DuplicateOwnerEmailRollsBackClient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), testAccount("a1", "user@example.com", "c1"), nil))

	err := s.CreateClient(ctx, testClient("c2", "b@example.com"), testAccount("a2", "user@example.com", "c2"), nil)
	assert.ErrorIs(t, err, ErrAccountAlreadyExists)

	_, err = s.GetClient(ctx, "c2")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestCreateAccount_UnknownClient(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateAccount(context.Background(), testAccount("a1", "x@example.com", "missing"))
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestListClients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)

	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), nil, nil))
	require.NoError(t, s.CreateClient(ctx, testClient("c2", "b@example.com"), nil, nil))

	clients, err = s.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 2)
}

func TestSetClientActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), nil, nil))

	require.NoError(t, s.SetClientActive(ctx, "c1", false))
	got, err := s.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, s.SetClientActive(ctx, "missing", true), ErrClientNotFound)
}

func TestDeleteClient_CascadesAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), testAccount("a1", "u1@example.com", "c1"), nil))
	require.NoError(t, s.CreateAccount(ctx, testAccount("a2", "u2@example.com", "c1")))

	require.NoError(t, s.DeleteClient(ctx, "c1"))

	_, err := s.GetAccount(ctx, "a1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	accounts, err := s.ListAccountsByClient(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, accounts)

	assert.ErrorIs(t, s.DeleteClient(ctx, "c1"), ErrClientNotFound)
}

func TestUpdateAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), testAccount("a1", "u1@example.com", "c1"), nil))
	require.NoError(t, s.CreateAccount(ctx, testAccount("a2", "u2@example.com", "c1")))

	name := "renamed"
	require.NoError(t, s.UpdateAccount(ctx, "a1", AccountUpdate{Username: &name}))
	got, err := s.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Username)
	assert.Equal(t, "u1@example.com", got.Email)

	taken := "u2@example.com"
	assert.ErrorIs(t, s.UpdateAccount(ctx, "a1", AccountUpdate{Email: &taken}), ErrAccountAlreadyExists)

	assert.NoError(t, s.UpdateAccount(ctx, "a1", AccountUpdate{}))
	assert.ErrorIs(t, s.UpdateAccount(ctx, "missing", AccountUpdate{}), ErrAccountNotFound)
	assert.ErrorIs(t, s.UpdateAccount(ctx, "missing", AccountUpdate{Username: &name}), ErrAccountNotFound)
}

func TestUpdateAccountPasswordAndPicture(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), testAccount("a1", "u1@example.com", "c1"), nil))

	require.NoError(t, s.UpdateAccountPassword(ctx, "a1", "$2a$10$other"))
	require.NoError(t, s.UpdateAccountProfilePicture(ctx, "a1", "avatars/a1.png"))
	require.NoError(t, s.SetAccountActive(ctx, "a1", false))

	got, err := s.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$other", got.PasswordHash)
	assert.Equal(t, "avatars/a1.png", got.ProfilePicture)
	assert.False(t, got.IsActive)

	require.NoError(t, s.UpdateAccountProfilePicture(ctx, "a1", ""))
	got, err = s.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, got.ProfilePicture)
}

func TestTenantIDImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateClient(ctx, testClient("c1", "a@example.com"), nil, nil))

	_, err := s.db.ExecContext(ctx, `UPDATE clients SET tenant_id = 'client_other' WHERE id = 'c1'`)
	assert.Error(t, err)

	got, err := s.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "client_c1", got.TenantID)
}

// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Verifies it keeps the same uniqueness, cascade and rollback rules as SQLiteStore

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_CreateClientRollsBackOnProvisionError(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.CreateClient(ctx, testClient("c1", "a@example.com"), testAccount("a1", "u@example.com", "c1"),
		func(context.Context, *Client) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = m.GetClient(ctx, "c1")
	assert.ErrorIs(t, err, ErrClientNotFound)
	_, err = m.GetAccount(ctx, "a1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMockStore_CommitErr(t *testing.T) {
	m := NewMockStore()
	m.CommitErr = errors.New("commit failed")

	called := false
	err := m.CreateClient(context.Background(), testClient("c1", "a@example.com"), nil,
		func(context.Context, *Client) error { called = true; return nil })
	require.Error(t, err)
	assert.True(t, called)

	clients, err := m.ListClients(context.Background())
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestMockStore_Uniqueness(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.CreateClient(ctx, testClient("c1", "a@example.com"), testAccount("a1", "u1@example.com", "c1"), nil))
	assert.ErrorIs(t, m.CreateClient(ctx, testClient("c2", "a@example.com"), nil, nil), ErrClientAlreadyExists)
	assert.ErrorIs(t, m.CreateAccount(ctx, testAccount("a2", "u1@example.com", "c1")), ErrAccountAlreadyExists)
	assert.ErrorIs(t, m.CreateAccount(ctx, testAccount("a3", "u3@example.com", "nope")), ErrClientNotFound)

	require.NoError(t, m.CreateAccount(ctx, testAccount("a2", "u2@example.com", "c1")))
	taken := "u2@example.com"
	assert.ErrorIs(t, m.UpdateAccount(ctx, "a1", AccountUpdate{Email: &taken}), ErrAccountAlreadyExists)
	same := "u1@example.com"
	assert.NoError(t, m.UpdateAccount(ctx, "a1", AccountUpdate{Email: &same}))
}

func TestMockStore_DeleteClientCascades(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.CreateClient(ctx, testClient("c1", "a@example.com"), testAccount("a1", "u1@example.com", "c1"), nil))
	require.NoError(t, m.DeleteClient(ctx, "c1"))

	_, err := m.GetAccount(ctx, "a1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.ErrorIs(t, m.DeleteClient(ctx, "c1"), ErrClientNotFound)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	require.NoError(t, m.CreateClient(ctx, testClient("c1", "a@example.com"), nil, nil))

	c, err := m.GetClient(ctx, "c1")
	require.NoError(t, err)
	c.Name = "mutated"

	again, err := m.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Client c1", again.Name)
}

package tenantdb

import (
	"context"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_LRUEviction(t *testing.T) {
	m := newTestManager(t, 2)
	ctx := context.Background()

	for _, id := range []string{"client_a", "client_b", "client_c"} {
		h, err := m.Provision(ctx, id)
		require.NoError(t, err)
		_, err = m.Execute(ctx, h, sq.Select("1"))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.pool.size())

	m.pool.mu.Lock()
	_, hasA := m.pool.entries["client_a"]
	_, hasC := m.pool.entries["client_c"]
	m.pool.mu.Unlock()
	assert.False(t, hasA, "least recently used store should be evicted")
	assert.True(t, hasC)

	// Evicted stores reopen transparently.
	h, err := m.Open(ctx, "client_a")
	require.NoError(t, err)
	_, err = m.Execute(ctx, h, sq.Select("1"))
	assert.NoError(t, err)
}

func TestPool_IdleEviction(t *testing.T) {
	m := newTestManager(t, 4)
	ctx := context.Background()

	h, err := m.Provision(ctx, "client_idle")
	require.NoError(t, err)
	_, err = m.Execute(ctx, h, sq.Select("1"))
	require.NoError(t, err)
	require.Equal(t, 1, m.pool.size())

	m.pool.evictIdle(time.Now())
	assert.Equal(t, 1, m.pool.size(), "recently used store must stay open")

	m.pool.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, m.pool.size())
}

func TestPool_EvictInUseDefersClose(t *testing.T) {
	m := newTestManager(t, 4)
	ctx := context.Background()

	_, err := m.Provision(ctx, "client_busy")
	require.NoError(t, err)

	entry, err := m.pool.acquire("client_busy", func() (*sqlx.DB, error) {
		return m.openDB(m.path("client_busy"), false)
	})
	require.NoError(t, err)

	require.NoError(t, m.pool.evict("client_busy"))
	assert.NoError(t, entry.db.PingContext(ctx), "entry in use must not be closed by eviction")

	m.pool.release(entry)
	assert.Error(t, entry.db.PingContext(ctx), "entry must close once released")
}

func TestPool_ClosedRejectsAcquire(t *testing.T) {
	m := newTestManager(t, 4)
	ctx := context.Background()

	h, err := m.Provision(ctx, "client_closed")
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Execute(ctx, h, sq.Select("1"))
	assert.ErrorIs(t, err, ErrClosed)
}

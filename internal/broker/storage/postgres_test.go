package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/inferq/internal/broker/core"
)

func newTestPostgresStore(t *testing.T) *PostgresResultStore {
	t.Helper()
	url := os.Getenv("INFERQ_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("INFERQ_TEST_DATABASE_URL not set")
	}
	store, err := OpenPostgresResultStore(context.Background(), PostgresConfig{URL: url, Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresResultStore_PublishFetch(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	result, err := core.NewResult(id, "cat", 0.92)
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, result, time.Minute))

	got, err := store.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cat", got.Label)
	assert.InDelta(t, 0.92, got.Score, 1e-9)
	assert.WithinDuration(t, result.ProducedAt, got.ProducedAt, time.Millisecond)

	// Upsert replaces the earlier row.
	require.NoError(t, store.Publish(ctx, core.NewErrorResult(id, core.ErrorKindModel), time.Minute))
	got, err = store.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.ErrorKindModel, got.ErrorKind)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Fetch(ctx, id)
	assert.ErrorIs(t, err, core.ErrResultNotFound)
}

func TestPostgresResultStore_ExpiryAndPurge(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	result, _ := core.NewResult(id, "cat", 0.5)
	require.NoError(t, store.Publish(ctx, result, -time.Second))

	_, err := store.Fetch(ctx, id)
	assert.ErrorIs(t, err, core.ErrResultNotFound)

	purged, err := store.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, 1)
}

func TestPostgresResultStore_Reserve(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	ok, err := store.Reserve(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Release(ctx, id))
	ok, err = store.Reserve(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	expired := uuid.NewString()
	ok, err = store.Reserve(ctx, expired, -time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Reserve(ctx, expired, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired reservation is taken over")
}

func TestMigrate_Idempotent(t *testing.T) {
	url := os.Getenv("INFERQ_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("INFERQ_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

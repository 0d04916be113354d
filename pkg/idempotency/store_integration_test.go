//go:build integration

package idempotency

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS idempotency_records (
    tenant_id    uuid NOT NULL,
    key          text NOT NULL,
    command_name text NOT NULL DEFAULT '',
    response     jsonb,
    created_at   timestamptz NOT NULL DEFAULT now(),
    expires_at   timestamptz NOT NULL,
    PRIMARY KEY (tenant_id, key)
);
`

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("IDEMPOTENCY_TEST_DSN")
	if dsn == "" {
		t.Skip("IDEMPOTENCY_TEST_DSN not set; skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE `+Table)
	require.NoError(t, err)

	return pool
}

func TestStoreSaveAndLookupReplaysExactBytes(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	store := NewStore(time.Hour)
	tenantID := uuid.New()

	response := json.RawMessage(`{"id":"42","total_cents":1999}`)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tx, Record{
		TenantID:    tenantID,
		Key:         "req-1",
		CommandName: "orders.create",
		Response:    response,
	}))
	require.NoError(t, tx.Commit(ctx))

	rec, err := store.Lookup(ctx, pool, tenantID, "req-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "orders.create", rec.CommandName)
	require.JSONEq(t, string(response), string(rec.Response))
}

func TestStoreLookupMissesOtherTenantAndKey(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	store := NewStore(time.Hour)
	tenantID := uuid.New()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tx, Record{TenantID: tenantID, Key: "req-1"}))
	require.NoError(t, tx.Commit(ctx))

	rec, err := store.Lookup(ctx, pool, tenantID, "req-2")
	require.NoError(t, err)
	require.Nil(t, rec)

	rec, err = store.Lookup(ctx, pool, uuid.New(), "req-1")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestStoreSaveConflictsOnDuplicateKey(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	store := NewStore(time.Hour)
	tenantID := uuid.New()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tx, Record{TenantID: tenantID, Key: "req-1"}))
	require.NoError(t, tx.Commit(ctx))

	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	err = store.Save(ctx, tx, Record{TenantID: tenantID, Key: "req-1"})
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.NoError(t, tx.Rollback(ctx))
}

func TestStoreReserveBlocksDuplicateAndCompleteStoresResponse(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	store := NewStore(time.Hour)
	tenantID := uuid.New()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Reserve(ctx, tx, tenantID, "req-1", "orders.create"))
	require.NoError(t, store.Complete(ctx, tx, tenantID, "req-1", json.RawMessage(`{"id":"1"}`)))
	require.NoError(t, tx.Commit(ctx))

	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	err = store.Reserve(ctx, tx, tenantID, "req-1", "orders.create")
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.NoError(t, tx.Rollback(ctx))

	rec, err := store.Lookup(ctx, pool, tenantID, "req-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.JSONEq(t, `{"id":"1"}`, string(rec.Response))
}

func TestStoreSweepRemovesOnlyExpired(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	store := NewStore(time.Hour)
	tenantID := uuid.New()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tx, Record{TenantID: tenantID, Key: "live"}))
	require.NoError(t, store.Save(ctx, tx, Record{
		TenantID:  tenantID,
		Key:       "expired",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, tx.Commit(ctx))

	// Expired records are invisible to Lookup even before the sweep runs.
	rec, err := store.Lookup(ctx, pool, tenantID, "expired")
	require.NoError(t, err)
	require.Nil(t, rec)

	removed, err := store.Sweep(ctx, pool)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	rec, err = store.Lookup(ctx, pool, tenantID, "live")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

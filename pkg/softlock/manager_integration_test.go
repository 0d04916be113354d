//go:build integration

package softlock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/venuehq/venue-sdk/pkg/serrors"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS soft_locks (
    id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id   uuid NOT NULL,
    entity_type text NOT NULL,
    entity_id   text NOT NULL,
    location_id uuid,
    holder_id   uuid NOT NULL,
    acquired_at timestamptz NOT NULL DEFAULT now(),
    expires_at  timestamptz NOT NULL,
    UNIQUE (tenant_id, entity_type, entity_id)
);
`

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("SOFTLOCK_TEST_DSN")
	if dsn == "" {
		t.Skip("SOFTLOCK_TEST_DSN not set; skipping integration test")
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

func TestAcquireConflictAndTakeoverAfterExpiry(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	mgr := NewManager(ManagerOptions{})
	tenantID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	params := AcquireParams{
		TenantID:   tenantID,
		EntityType: "order",
		EntityID:   "table-4",
		HolderID:   alice,
	}

	lock, err := mgr.Acquire(ctx, pool, params)
	require.NoError(t, err)
	require.Equal(t, alice, lock.HolderID)
	require.True(t, lock.ExpiresAt.After(time.Now()))

	// Different holder before expiry: conflict carrying the current holder.
	params.HolderID = bob
	_, err = mgr.Acquire(ctx, pool, params)
	require.Error(t, err)
	require.Equal(t, serrors.CodeLockConflict, serrors.Code(err))

	var se *serrors.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, alice.String(), se.Meta["holder"])

	// Same holder before expiry: refresh, same row.
	params.HolderID = alice
	refreshed, err := mgr.Acquire(ctx, pool, params)
	require.NoError(t, err)
	require.Equal(t, lock.ID, refreshed.ID)
	require.False(t, refreshed.ExpiresAt.Before(lock.ExpiresAt))

	// Expire the lease; a different holder now takes over in place.
	_, err = pool.Exec(ctx, `UPDATE `+Table+` SET expires_at = now() - interval '1 second' WHERE id = $1`, lock.ID)
	require.NoError(t, err)

	params.HolderID = bob
	taken, err := mgr.Acquire(ctx, pool, params)
	require.NoError(t, err)
	require.Equal(t, bob, taken.HolderID)
}

func TestReleaseIsHolderCheckedAndIdempotent(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	mgr := NewManager(ManagerOptions{})
	tenantID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	lock, err := mgr.Acquire(ctx, pool, AcquireParams{
		TenantID: tenantID, EntityType: "order", EntityID: "o-1", HolderID: alice,
	})
	require.NoError(t, err)

	// Wrong holder without force: silently no-op, lock survives.
	require.NoError(t, mgr.Release(ctx, pool, tenantID, lock.ID, bob, false))
	locks, err := mgr.ListActive(ctx, pool, tenantID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, locks, 1)

	// Force releases regardless of holder.
	require.NoError(t, mgr.Release(ctx, pool, tenantID, lock.ID, bob, true))
	locks, err = mgr.ListActive(ctx, pool, tenantID, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, locks)

	// Releasing again is not an error.
	require.NoError(t, mgr.Release(ctx, pool, tenantID, lock.ID, alice, false))

	// Acquire after release succeeds for anyone.
	_, err = mgr.Acquire(ctx, pool, AcquireParams{
		TenantID: tenantID, EntityType: "order", EntityID: "o-1", HolderID: bob,
	})
	require.NoError(t, err)
}

func TestCleanExpiredRemovesExactlyExpiredRows(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	mgr := NewManager(ManagerOptions{})
	tenantID := uuid.New()
	holder := uuid.New()

	for i, entityID := range []string{"a", "b", "c", "d"} {
		_, err := mgr.Acquire(ctx, pool, AcquireParams{
			TenantID: tenantID, EntityType: "order", EntityID: entityID, HolderID: holder,
		})
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = pool.Exec(ctx,
				`UPDATE `+Table+` SET expires_at = now() - ($2 || ' minutes')::interval WHERE tenant_id = $1 AND entity_id = $3`,
				tenantID, i+1, entityID)
			require.NoError(t, err)
		}
	}

	cleaned, err := mgr.CleanExpiredForTenant(ctx, pool, tenantID)
	require.NoError(t, err)
	require.EqualValues(t, 2, cleaned)

	locks, err := mgr.ListActive(ctx, pool, tenantID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, locks, 2)
}

func TestListActiveFilters(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	mgr := NewManager(ManagerOptions{})
	tenantID := uuid.New()
	holder := uuid.New()
	locationID := uuid.New()

	_, err := mgr.Acquire(ctx, pool, AcquireParams{
		TenantID: tenantID, EntityType: "order", EntityID: "o-1", HolderID: holder, LocationID: &locationID,
	})
	require.NoError(t, err)
	_, err = mgr.Acquire(ctx, pool, AcquireParams{
		TenantID: tenantID, EntityType: "reservation", EntityID: "r-1", HolderID: holder,
	})
	require.NoError(t, err)

	locks, err := mgr.ListActive(ctx, pool, tenantID, ListFilter{EntityType: "order"})
	require.NoError(t, err)
	require.Len(t, locks, 1)
	require.Equal(t, "o-1", locks[0].EntityID)

	locks, err = mgr.ListActive(ctx, pool, tenantID, ListFilter{LocationID: &locationID})
	require.NoError(t, err)
	require.Len(t, locks, 1)
	require.Equal(t, "order", locks[0].EntityType)

	// Other tenants never see these locks.
	locks, err = mgr.ListActive(ctx, pool, uuid.New(), ListFilter{})
	require.NoError(t, err)
	require.Empty(t, locks)
}

func TestAcquireClampsTTLToMax(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	mgr := NewManager(ManagerOptions{DefaultTTL: 5 * time.Minute, MaxTTL: 10 * time.Minute})

	lock, err := mgr.Acquire(ctx, pool, AcquireParams{
		TenantID:   uuid.New(),
		EntityType: "order",
		EntityID:   "o-1",
		HolderID:   uuid.New(),
		TTL:        24 * time.Hour,
	})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), lock.ExpiresAt, 30*time.Second)
}

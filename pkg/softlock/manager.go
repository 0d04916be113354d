package softlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/pkg/repo"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

type ManagerOptions struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

func (o *ManagerOptions) setDefaults() {
	if o.DefaultTTL == 0 {
		o.DefaultTTL = 5 * time.Minute
	}
	if o.MaxTTL == 0 {
		o.MaxTTL = 30 * time.Minute
	}
}

type Manager struct {
	opts ManagerOptions
	m    *metrics
}

func NewManager(opts ManagerOptions) *Manager {
	opts.setDefaults()
	return &Manager{opts: opts, m: getMetrics()}
}

// Acquire leases (tenant, entityType, entityID) for the holder. The insert
// and the conflict check are one atomic statement: on conflict the existing
// row is refreshed only when it is expired or already held by the same
// holder. A select-then-insert would leave a window where two holders both
// see no lock and both succeed.
func (mgr *Manager) Acquire(ctx context.Context, db repo.Tx, p AcquireParams) (*Lock, error) {
	if p.TenantID == uuid.Nil {
		return nil, serrors.NewFieldRequiredError("tenantId")
	}
	if p.EntityType == "" {
		return nil, serrors.NewFieldRequiredError("entityType")
	}
	if p.EntityID == "" {
		return nil, serrors.NewFieldRequiredError("entityId")
	}
	if p.HolderID == uuid.Nil {
		return nil, serrors.NewFieldRequiredError("holderId")
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = mgr.opts.DefaultTTL
	}
	if ttl > mgr.opts.MaxTTL {
		ttl = mgr.opts.MaxTTL
	}
	expiresAt := time.Now().Add(ttl)

	const q = `INSERT INTO ` + Table + ` (tenant_id, entity_type, entity_id, location_id, holder_id, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, entity_type, entity_id) DO UPDATE
		    SET holder_id   = EXCLUDED.holder_id,
		        location_id = EXCLUDED.location_id,
		        acquired_at = now(),
		        expires_at  = EXCLUDED.expires_at
		  WHERE ` + Table + `.expires_at <= now()
		     OR ` + Table + `.holder_id = EXCLUDED.holder_id
		 RETURNING id, acquired_at, expires_at`

	lock := Lock{
		TenantID:   p.TenantID,
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		LocationID: p.LocationID,
		HolderID:   p.HolderID,
	}
	err := db.QueryRow(ctx, q, p.TenantID, p.EntityType, p.EntityID, p.LocationID, p.HolderID, expiresAt).
		Scan(&lock.ID, &lock.AcquiredAt, &lock.ExpiresAt)
	if repo.IsNoRows(err) {
		// The conflict guard rejected the upsert: an unexpired lock with a
		// different holder exists.
		holder, holderErr := mgr.currentHolder(ctx, db, p.TenantID, p.EntityType, p.EntityID)
		if holderErr != nil {
			return nil, holderErr
		}
		mgr.m.conflicts.WithLabelValues(p.EntityType).Inc()
		return nil, serrors.NewLockConflictError(p.EntityType, p.EntityID, holder)
	}
	if err != nil {
		return nil, fmt.Errorf("softlock acquire: %w", err)
	}

	mgr.m.acquires.WithLabelValues(p.EntityType).Inc()
	return &lock, nil
}

func (mgr *Manager) currentHolder(ctx context.Context, db repo.Tx, tenantID uuid.UUID, entityType, entityID string) (string, error) {
	const q = `SELECT holder_id FROM ` + Table + `
		  WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`

	var holder uuid.UUID
	err := db.QueryRow(ctx, q, tenantID, entityType, entityID).Scan(&holder)
	if repo.IsNoRows(err) {
		// Lost the race to a release; caller simply retries.
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("softlock holder read: %w", err)
	}
	return holder.String(), nil
}

// Release deletes the lock when the holder matches. Elevated callers pass
// force to release someone else's lock. Releasing a missing or expired lock
// is a no-op, not an error.
func (mgr *Manager) Release(ctx context.Context, db repo.Tx, tenantID, lockID, holderID uuid.UUID, force bool) error {
	if lockID == uuid.Nil {
		return serrors.NewFieldRequiredError("lockId")
	}

	var err error
	if force {
		_, err = db.Exec(ctx, `DELETE FROM `+Table+` WHERE tenant_id = $1 AND id = $2`, tenantID, lockID)
	} else {
		_, err = db.Exec(ctx, `DELETE FROM `+Table+` WHERE tenant_id = $1 AND id = $2 AND holder_id = $3`,
			tenantID, lockID, holderID)
	}
	if err != nil {
		return fmt.Errorf("softlock release: %w", err)
	}
	return nil
}

// CleanExpired deletes every expired lock across tenants and returns the
// count removed. The sweeper calls this on a schedule.
func (mgr *Manager) CleanExpired(ctx context.Context, db repo.Tx) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM `+Table+` WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("softlock clean: %w", err)
	}
	mgr.m.swept.Add(float64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// CleanExpiredForTenant is the tenant-scoped variant backing POST /locks/clean.
func (mgr *Manager) CleanExpiredForTenant(ctx context.Context, db repo.Tx, tenantID uuid.UUID) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM `+Table+` WHERE tenant_id = $1 AND expires_at <= now()`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("softlock clean: %w", err)
	}
	mgr.m.swept.Add(float64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// ListActive returns unexpired locks for the tenant, newest first.
func (mgr *Manager) ListActive(ctx context.Context, db repo.Tx, tenantID uuid.UUID, filter ListFilter) ([]Lock, error) {
	q := `SELECT id, tenant_id, entity_type, entity_id, location_id, holder_id, acquired_at, expires_at
	      FROM ` + Table + `
	     WHERE tenant_id = $1 AND expires_at > now()`
	args := []any{tenantID}

	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		q += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		q += fmt.Sprintf(" AND location_id = $%d", len(args))
	}
	q += " ORDER BY acquired_at DESC"

	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("softlock list: %w", err)
	}
	defer rows.Close()

	locks := make([]Lock, 0)
	for rows.Next() {
		var l Lock
		if err := rows.Scan(&l.ID, &l.TenantID, &l.EntityType, &l.EntityID, &l.LocationID, &l.HolderID, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, fmt.Errorf("softlock list scan: %w", err)
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("softlock list rows: %w", err)
	}
	return locks, nil
}

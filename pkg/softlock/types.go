// Package softlock manages short-lived advisory leases on business entities.
// A lock never blocks a writer; optimistic version checks do that. It exists
// to give terminals a fast "someone else is editing this" signal.
package softlock

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/pkg/serrors"
)

const Table = "soft_locks"

var ErrInvalidInput = serrors.New(http.StatusBadRequest, "SOFTLOCK_INVALID_INPUT", "invalid soft lock input", nil)

// Lock is one active lease. Uniqueness is enforced on
// (tenant_id, entity_type, entity_id); expired rows are reused in place by
// the next acquire and removed by the sweeper otherwise.
type Lock struct {
	ID         uuid.UUID  `json:"lockId"`
	TenantID   uuid.UUID  `json:"tenantId"`
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	LocationID *uuid.UUID `json:"locationId,omitempty"`
	HolderID   uuid.UUID  `json:"holderId"`
	AcquiredAt time.Time  `json:"acquiredAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

func (l Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// AcquireParams identifies the entity to lease and who is asking. TTL of zero
// takes the manager default; TTLs above the configured maximum are clamped.
type AcquireParams struct {
	TenantID   uuid.UUID
	EntityType string
	EntityID   string
	LocationID *uuid.UUID
	HolderID   uuid.UUID
	TTL        time.Duration
}

// ListFilter narrows ListActive results. Zero values mean no filter.
type ListFilter struct {
	EntityType string
	LocationID *uuid.UUID
}

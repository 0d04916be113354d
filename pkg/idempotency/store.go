// Package idempotency persists command responses keyed by (tenant_id, key) so
// that a retried request replays the original response byte for byte instead
// of executing its side effects again.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/pkg/repo"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

const Table = "idempotency_records"

var ErrDuplicateKey = serrors.New(http.StatusConflict, "IDEMPOTENCY_DUPLICATE_KEY", "idempotency key already recorded", nil)

// Record is one cached command outcome. Response holds the exact bytes the
// original request returned.
type Record struct {
	TenantID    uuid.UUID
	Key         string
	CommandName string
	Response    json.RawMessage
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type Store struct {
	ttl time.Duration
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{ttl: ttl}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Lookup returns the cached record for (tenantID, key), or nil when no live
// record exists. Expired records are treated as absent; the sweeper removes
// them later.
func (s *Store) Lookup(ctx context.Context, db repo.Tx, tenantID uuid.UUID, key string) (*Record, error) {
	const q = `SELECT tenant_id, key, command_name, response, created_at, expires_at
		   FROM ` + Table + `
		  WHERE tenant_id = $1 AND key = $2 AND expires_at > now()`

	var rec Record
	err := db.QueryRow(ctx, q, tenantID, key).Scan(
		&rec.TenantID, &rec.Key, &rec.CommandName, &rec.Response, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if repo.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	return &rec, nil
}

// Reserve claims (tenant_id, key) inside the caller's transaction BEFORE the
// mutation runs. A concurrent identical request blocks on the unique index
// until the winner commits and then surfaces ErrDuplicateKey, so the loser
// rolls back without ever executing its mutation and replays the winner's
// response. Reserving after the mutation would let the loser fail on the
// aggregate's version check first and miss the replay path entirely.
func (s *Store) Reserve(ctx context.Context, tx repo.Tx, tenantID uuid.UUID, key, commandName string) error {
	if tenantID == uuid.Nil {
		return serrors.NewFieldRequiredError("tenant_id")
	}
	if key == "" {
		return serrors.NewFieldRequiredError("key")
	}

	const q = `INSERT INTO ` + Table + ` (tenant_id, key, command_name, expires_at)
		 VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, q, tenantID, key, commandName, time.Now().Add(s.ttl))
	if repo.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	if err != nil {
		return fmt.Errorf("idempotency reserve: %w", err)
	}
	return nil
}

// Complete stores the serialized response on the reserved row. It runs in the
// same transaction as Reserve and the mutation, so a committed record always
// carries its response.
func (s *Store) Complete(ctx context.Context, tx repo.Tx, tenantID uuid.UUID, key string, response json.RawMessage) error {
	const q = `UPDATE ` + Table + ` SET response = $3 WHERE tenant_id = $1 AND key = $2`
	if _, err := tx.Exec(ctx, q, tenantID, key, response); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Save is Reserve and Complete in one statement, for callers that already
// hold the response when they enter the transaction.
func (s *Store) Save(ctx context.Context, tx repo.Tx, rec Record) error {
	if rec.TenantID == uuid.Nil {
		return serrors.NewFieldRequiredError("tenant_id")
	}
	if rec.Key == "" {
		return serrors.NewFieldRequiredError("key")
	}

	expiresAt := rec.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(s.ttl)
	}

	const q = `INSERT INTO ` + Table + ` (tenant_id, key, command_name, response, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, q, rec.TenantID, rec.Key, rec.CommandName, rec.Response, expiresAt)
	if repo.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.Key)
	}
	if err != nil {
		return fmt.Errorf("idempotency save: %w", err)
	}
	return nil
}

// Sweep deletes expired records and returns how many were removed.
func (s *Store) Sweep(ctx context.Context, db repo.Tx) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM `+Table+` WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("idempotency sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

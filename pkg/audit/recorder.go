// Package audit records executed commands after commit. Recording is
// best-effort: it retries briefly and then logs, but never fails the command
// whose outcome it describes.
package audit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const Table = "audit_log"

type Entry struct {
	TenantID    uuid.UUID
	ActorID     uuid.UUID
	CommandName string
	EntityType  string
	EntityID    string
	ResultBytes int
}

type Recorder struct {
	pool *pgxpool.Pool
	log  *logrus.Entry

	maxElapsed time.Duration
}

func NewRecorder(pool *pgxpool.Pool, log *logrus.Entry) *Recorder {
	return &Recorder{
		pool:       pool,
		log:        log,
		maxElapsed: 5 * time.Second,
	}
}

// Record writes the entry with bounded retries. Errors are swallowed after
// logging: the command already committed and its caller must see success.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.pool == nil {
		return
	}

	op := func() error {
		const q = `INSERT INTO ` + Table + ` (tenant_id, actor_id, command_name, entity_type, entity_id, result_bytes)
			 VALUES ($1, NULLIF($2, '00000000-0000-0000-0000-000000000000'::uuid), $3, $4, $5, $6)`
		_, err := r.pool.Exec(ctx, q, e.TenantID, e.ActorID, e.CommandName, e.EntityType, e.EntityID, e.ResultBytes)
		return err
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxElapsedTime(r.maxElapsed),
	), ctx)

	if err := backoff.Retry(op, policy); err != nil && r.log != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id": e.TenantID.String(),
			"command":   e.CommandName,
			"entity":    e.EntityType + "/" + e.EntityID,
		}).Warn("audit: failed to record command")
	}
}

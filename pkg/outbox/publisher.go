package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/pkg/repo"
)

// Publisher enqueues entries inside the caller's transaction: an entry
// exists if and only if the transaction that created it committed.
type Publisher interface {
	Enqueue(ctx context.Context, tx repo.Tx, msg Message) (sequence int64, err error)
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, msg Message) (int64, error) {
	if msg.TenantID == uuid.Nil {
		return 0, fmt.Errorf("%w: tenant_id is required", ErrInvalidConfig)
	}
	if msg.EventID == uuid.Nil {
		return 0, fmt.Errorf("%w: event_id is required", ErrInvalidConfig)
	}
	if msg.EventType == "" {
		return 0, fmt.Errorf("%w: event_type is required", ErrInvalidConfig)
	}

	const q = `INSERT INTO ` + Table + ` (tenant_id, event_type, event_id, idempotency_key, payload, status, occurred_at, available_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, '` + StatusPending + `', now(), now())
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`

	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.TenantID, msg.EventType, msg.EventID, msg.IdempotencyKey, msg.Payload).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}

	p.m.enqueueTotal.WithLabelValues(msg.EventType).Inc()

	return sequence, nil
}

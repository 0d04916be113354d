// Package executor is the transactional-outbox command wrapper every business
// module funnels its mutations through. One Execute call runs a mutation, the
// outbox inserts for its events, and the idempotency record in a single
// transaction; retried requests replay the committed response instead of
// re-executing side effects.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/venuehq/venue-sdk/pkg/audit"
	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/idempotency"
	"github.com/venuehq/venue-sdk/pkg/outbox"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

// Command names the operation being executed. EntityType/EntityID identify
// the aggregate for the audit trail; IdempotencyKey is the caller's
// client-request id and may be empty.
type Command struct {
	Name           string
	IdempotencyKey string
	EntityType     string
	EntityID       string
}

// Event is a domain event emitted by a mutation. Payload is marshaled and
// enqueued to the outbox in the same transaction as the state change.
type Event struct {
	Type    string
	Payload any
}

// Outcome is what a mutation returns: the value serialized into the response
// plus zero or more events.
type Outcome struct {
	Result any
	Events []Event
}

// Mutate runs inside the executor's transaction. It reads and writes through
// composables.UseTx(ctx) and never touches the outbox directly.
type Mutate func(ctx context.Context) (*Outcome, error)

type Options struct {
	TxTimeout time.Duration
	Logger    *logrus.Entry
}

type Executor struct {
	store     *idempotency.Store
	publisher outbox.Publisher
	auditor   *audit.Recorder
	opts      Options
	m         *metrics
}

func New(store *idempotency.Store, publisher outbox.Publisher, auditor *audit.Recorder, opts Options) *Executor {
	if opts.TxTimeout == 0 {
		opts.TxTimeout = 15 * time.Second
	}
	return &Executor{
		store:     store,
		publisher: publisher,
		auditor:   auditor,
		opts:      opts,
		m:         getMetrics(),
	}
}

// Execute runs cmd's mutation with full idempotency and outbox semantics and
// returns the serialized result. The returned bytes are exactly what a replay
// of the same (tenant, key) will see.
func (e *Executor) Execute(ctx context.Context, cmd Command, mutate Mutate) (json.RawMessage, error) {
	if cmd.Name == "" {
		return nil, serrors.NewFieldRequiredError("command name")
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, serrors.NewValidationError("tenant is required")
	}

	if cmd.IdempotencyKey != "" {
		cached, err := e.lookupCached(ctx, tenantID, cmd.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			e.m.replays.WithLabelValues(cmd.Name).Inc()
			return cached, nil
		}
	}

	response, err := composables.InTenantTxResult(ctx, e.opts.TxTimeout, func(txCtx context.Context) (json.RawMessage, error) {
		return e.runInTx(txCtx, tenantID, cmd, mutate)
	})
	if err != nil {
		// A concurrent identical request won the idempotency insert. Its
		// transaction has committed by the time the unique violation
		// surfaces, so the winner's response is readable now.
		if cmd.IdempotencyKey != "" && errors.Is(err, idempotency.ErrDuplicateKey) {
			winner, lookupErr := e.lookupCached(ctx, tenantID, cmd.IdempotencyKey)
			if lookupErr == nil && winner != nil {
				e.m.replays.WithLabelValues(cmd.Name).Inc()
				return winner, nil
			}
			return nil, serrors.NewInternalError(fmt.Errorf("idempotency race lost but winner unreadable: %w", err))
		}
		e.m.commands.WithLabelValues(cmd.Name, resultLabel(err)).Inc()
		return nil, err
	}

	e.m.commands.WithLabelValues(cmd.Name, "success").Inc()

	e.recordAudit(ctx, tenantID, cmd, len(response))

	return response, nil
}

func (e *Executor) runInTx(txCtx context.Context, tenantID uuid.UUID, cmd Command, mutate Mutate) (json.RawMessage, error) {
	tx, err := composables.UseTx(txCtx)
	if err != nil {
		return nil, err
	}

	// Claim the key before mutating: a racing duplicate blocks here until the
	// first transaction commits, then replays its response instead of running
	// the mutation against already-advanced state.
	if cmd.IdempotencyKey != "" {
		if err := e.store.Reserve(txCtx, tx, tenantID, cmd.IdempotencyKey, cmd.Name); err != nil {
			return nil, err
		}
	}

	outcome, err := mutate(txCtx)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, serrors.NewInternalError(errors.New("mutation returned no outcome"))
	}

	response, err := json.Marshal(outcome.Result)
	if err != nil {
		return nil, serrors.NewInternalError(fmt.Errorf("serialize command result: %w", err))
	}

	for _, ev := range outcome.Events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, serrors.NewInternalError(fmt.Errorf("serialize event %s: %w", ev.Type, err))
		}
		if _, err := e.publisher.Enqueue(txCtx, tx, outbox.Message{
			TenantID:       tenantID,
			EventType:      ev.Type,
			EventID:        uuid.New(),
			IdempotencyKey: cmd.IdempotencyKey,
			Payload:        payload,
		}); err != nil {
			return nil, err
		}
	}

	if cmd.IdempotencyKey != "" {
		if err := e.store.Complete(txCtx, tx, tenantID, cmd.IdempotencyKey, response); err != nil {
			return nil, err
		}
	}

	return response, nil
}

func (e *Executor) lookupCached(ctx context.Context, tenantID uuid.UUID, key string) (json.RawMessage, error) {
	pool, err := composables.UsePool(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Lookup(ctx, pool, tenantID, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Response, nil
}

func (e *Executor) recordAudit(ctx context.Context, tenantID uuid.UUID, cmd Command, resultBytes int) {
	if e.auditor == nil {
		return
	}

	actorID, _ := composables.UseActorID(ctx)
	e.auditor.Record(context.WithoutCancel(ctx), audit.Entry{
		TenantID:    tenantID,
		ActorID:     actorID,
		CommandName: cmd.Name,
		EntityType:  cmd.EntityType,
		EntityID:    cmd.EntityID,
		ResultBytes: resultBytes,
	})
}

func resultLabel(err error) string {
	switch serrors.Code(err) {
	case serrors.CodeVersionConflict:
		return "version_conflict"
	case serrors.CodeNotFound:
		return "not_found"
	case serrors.CodeValidation:
		return "validation"
	case serrors.CodeLockConflict:
		return "lock_conflict"
	default:
		return "error"
	}
}

package outbox

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Relay drains committed pending entries and hands them to the Dispatcher.
// Delivery is at-least-once: a crash between subscriber success and the
// published update causes redelivery, so consumers dedup on EventID. Claims
// use FOR UPDATE SKIP LOCKED plus a claimed_at lease so that at most one
// relay instance processes a given row at a time.
type Relay struct {
	pool       *pgxpool.Pool
	dispatcher Dispatcher
	opts       RelayOptions

	lockKey int64

	m *metrics
}

func NewRelay(pool *pgxpool.Pool, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}

	opts.setDefaults()

	r := &Relay{
		pool:       pool,
		dispatcher: dispatcher,
		opts:       opts,
		m:          getMetrics(),
		lockKey:    advisoryLockKey("outbox:" + Table),
	}
	if r.opts.Logger == nil {
		r.opts.Logger = logrusNop()
	}
	return r, nil
}

func (r *Relay) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}

	r.m.relayLeader.Set(1)
	return r.runLoop(ctx, nil)
}

func (r *Relay) runSingleActive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := r.pool.Acquire(ctx)
		if err != nil {
			r.opts.Logger.WithError(err).Warn("outbox: failed to acquire connection for single-active relay")
			if err := sleepOrDone(ctx, r.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		leader, err := r.tryAcquireLeader(ctx, conn)
		if err != nil {
			conn.Release()
			r.opts.Logger.WithError(err).Warn("outbox: failed to attempt advisory lock")
			if err := sleepOrDone(ctx, r.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		if !leader {
			r.m.relayLeader.Set(0)
			conn.Release()
			if err := sleepOrDone(ctx, r.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		r.m.relayLeader.Set(1)
		r.opts.Logger.Info("outbox: relay became leader")

		err = r.runLoop(ctx, conn)
		_ = r.releaseLeader(context.Background(), conn)
		conn.Release()
		return err
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (r *Relay) runLoop(ctx context.Context, conn *pgxpool.Conn) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, conn); err != nil {
				r.opts.Logger.WithError(err).Debug("outbox: observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(r.opts.ObserveQueueDepthEvery)
		}

		if err := r.processOnce(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: process tick failed")
		}
	}
}

type claimed struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	EventType      string
	EventID        uuid.UUID
	IdempotencyKey string
	Payload        []byte
	OccurredAt     time.Time
	Sequence       int64
	Attempts       int
}

// ProcessOnce claims and dispatches a single batch. Exposed so operators can
// trigger a drain without waiting for the poll interval.
func (r *Relay) ProcessOnce(ctx context.Context) error {
	return r.processOnce(ctx, nil)
}

func (r *Relay) processOnce(ctx context.Context, conn *pgxpool.Conn) error {
	now := time.Now()
	cutoff := now.Add(-r.opts.ClaimTTL)

	batch, err := r.claim(ctx, conn, now, cutoff)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	for _, c := range batch {
		dispatchCtx := ctx
		var cancel func()
		if r.opts.DispatchTimeout > 0 {
			dispatchCtx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		}

		start := time.Now()
		err := r.dispatcher.Dispatch(dispatchCtx, DispatchedMessage{
			Meta: Meta{
				TenantID:       c.TenantID,
				EventType:      c.EventType,
				EventID:        c.EventID,
				IdempotencyKey: c.IdempotencyKey,
				OccurredAt:     c.OccurredAt,
				Sequence:       c.Sequence,
				Attempts:       c.Attempts,
			},
			Payload: c.Payload,
		})
		if cancel != nil {
			cancel()
		}

		latency := time.Since(start)
		if err == nil {
			r.recordDispatch(c.EventType, "success", latency)
			if ackErr := r.ack(ctx, conn, c.ID); ackErr != nil {
				r.opts.Logger.WithError(ackErr).WithFields(logFields(c)).Warn("outbox: ack failed")
			}
			continue
		}

		r.recordDispatch(c.EventType, "failure", latency)
		lastErr := truncateError(err, r.opts.LastErrorMaxLen)

		if c.Attempts >= r.opts.MaxAttempts {
			r.m.deadTotal.WithLabelValues(c.EventType).Inc()
			r.opts.Logger.WithFields(logFields(c)).WithField("last_error", lastErr).
				Error("outbox: entry dead-lettered after exhausting retries")
			if deadErr := r.dead(ctx, conn, c.ID, lastErr); deadErr != nil {
				r.opts.Logger.WithError(deadErr).WithFields(logFields(c)).Warn("outbox: dead update failed")
			}
			continue
		}

		next := time.Now().Add(backoff(c.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
		if nackErr := r.nack(ctx, conn, c.ID, lastErr, next); nackErr != nil {
			r.opts.Logger.WithError(nackErr).WithFields(logFields(c)).Warn("outbox: nack failed")
		}
	}

	return nil
}

func (r *Relay) claim(ctx context.Context, conn *pgxpool.Conn, now, leaseCutoff time.Time) ([]claimed, error) {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.rollback(ctx)

	const q = `SELECT id, tenant_id, event_type, event_id, COALESCE(idempotency_key, ''), payload, occurred_at, sequence, attempts
		   FROM ` + Table + `
		  WHERE status = '` + StatusPending + `'
		    AND available_at <= $1
		    AND attempts < $2
		    AND (claimed_at IS NULL OR claimed_at < $3)
		  ORDER BY occurred_at, sequence
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`

	rows, err := tx.tx.Query(ctx, q, now, r.opts.MaxAttempts, leaseCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, errors.Join(errors.New("outbox claim select"), err)
	}
	defer rows.Close()

	var items []claimed
	var ids []uuid.UUID
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.TenantID, &c.EventType, &c.EventID, &c.IdempotencyKey, &c.Payload, &c.OccurredAt, &c.Sequence, &c.Attempts); err != nil {
			return nil, errors.Join(errors.New("outbox claim scan"), err)
		}
		c.Attempts++
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(errors.New("outbox claim rows"), err)
	}
	if len(ids) == 0 {
		if err := tx.commit(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	const update = `UPDATE ` + Table + ` SET claimed_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`
	if _, err := tx.tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
		return nil, errors.Join(errors.New("outbox claim update"), err)
	}

	if err := tx.commit(ctx); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *Relay) ack(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	const q = `UPDATE ` + Table + `
		    SET status = '` + StatusPublished + `',
		        published_at = now(),
		        claimed_at = NULL,
		        last_error = NULL
		  WHERE id = $1 AND status = '` + StatusPending + `'`
	return r.execOne(ctx, conn, q, id)
}

func (r *Relay) nack(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string, nextAvailable time.Time) error {
	const q = `UPDATE ` + Table + `
		    SET claimed_at = NULL,
		        last_error = $2,
		        available_at = $3
		  WHERE id = $1 AND status = '` + StatusPending + `'`
	return r.execOne(ctx, conn, q, id, lastError, nextAvailable)
}

func (r *Relay) dead(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string) error {
	const q = `UPDATE ` + Table + `
		    SET status = '` + StatusDeadLetter + `',
		        claimed_at = NULL,
		        last_error = $2
		  WHERE id = $1 AND status = '` + StatusPending + `'`
	return r.execOne(ctx, conn, q, id, lastError)
}

func (r *Relay) execOne(ctx context.Context, conn *pgxpool.Conn, q string, args ...any) error {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	if _, err := tx.tx.Exec(ctx, q, args...); err != nil {
		return err
	}
	return tx.commit(ctx)
}

func (r *Relay) observeQueueDepth(ctx context.Context, conn *pgxpool.Conn) error {
	exec := txExec{pool: r.pool, conn: conn}
	db := exec.queryer()

	var pending, claimedCount, dead int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM `+Table+` WHERE status = '`+StatusPending+`'`).Scan(&pending); err != nil {
		return err
	}
	if err := db.QueryRow(ctx, `SELECT count(*) FROM `+Table+` WHERE status = '`+StatusPending+`' AND claimed_at IS NOT NULL`).Scan(&claimedCount); err != nil {
		return err
	}
	if err := db.QueryRow(ctx, `SELECT count(*) FROM `+Table+` WHERE status = '`+StatusDeadLetter+`'`).Scan(&dead); err != nil {
		return err
	}

	r.m.pending.Set(float64(pending))
	r.m.claimed.Set(float64(claimedCount))
	r.m.deadLetter.Set(float64(dead))
	return nil
}

func (r *Relay) recordDispatch(eventType, result string, latency time.Duration) {
	r.m.dispatchTotal.WithLabelValues(eventType, result).Inc()
	r.m.dispatchLatency.WithLabelValues(eventType, result).Observe(latency.Seconds())
}

func (r *Relay) tryAcquireLeader(ctx context.Context, conn *pgxpool.Conn) (bool, error) {
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Relay) releaseLeader(ctx context.Context, conn *pgxpool.Conn) error {
	var ok bool
	return conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey).Scan(&ok)
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

type txExec struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

func (e txExec) begin(ctx context.Context) (*txWrap, error) {
	if e.conn != nil {
		tx, err := e.conn.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return nil, err
		}
		return &txWrap{tx: tx}, nil
	}
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &txWrap{tx: tx}, nil
}

func (e txExec) queryer() queryer {
	if e.conn != nil {
		return e.conn
	}
	return e.pool
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txWrap struct {
	tx pgx.Tx
}

func (t *txWrap) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txWrap) rollback(ctx context.Context) {
	_ = t.tx.Rollback(ctx)
}

func logFields(c claimed) map[string]any {
	return map[string]any{
		"event_type": c.EventType,
		"event_id":   c.EventID.String(),
		"tenant_id":  c.TenantID.String(),
		"sequence":   c.Sequence,
		"attempts":   c.Attempts,
	}
}

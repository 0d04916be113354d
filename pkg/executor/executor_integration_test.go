//go:build integration

package executor

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/idempotency"
	"github.com/venuehq/venue-sdk/pkg/outbox"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS outbox_entries (
    id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    sequence        bigint GENERATED ALWAYS AS IDENTITY,
    tenant_id       uuid NOT NULL,
    event_type      text NOT NULL,
    event_id        uuid NOT NULL UNIQUE,
    idempotency_key text,
    payload         jsonb NOT NULL,
    status          text NOT NULL DEFAULT 'pending',
    attempts        int NOT NULL DEFAULT 0,
    occurred_at     timestamptz NOT NULL DEFAULT now(),
    available_at    timestamptz NOT NULL DEFAULT now(),
    claimed_at      timestamptz,
    published_at    timestamptz,
    last_error      text
);
CREATE TABLE IF NOT EXISTS idempotency_records (
    tenant_id    uuid NOT NULL,
    key          text NOT NULL,
    command_name text NOT NULL DEFAULT '',
    response     jsonb,
    created_at   timestamptz NOT NULL DEFAULT now(),
    expires_at   timestamptz NOT NULL,
    PRIMARY KEY (tenant_id, key)
);
CREATE TABLE IF NOT EXISTS executor_test_counters (
    tenant_id uuid NOT NULL,
    name      text NOT NULL,
    value     int NOT NULL DEFAULT 0,
    PRIMARY KEY (tenant_id, name)
);
`

func newTestCtx(t *testing.T) (context.Context, *pgxpool.Pool, uuid.UUID) {
	t.Helper()

	dsn := os.Getenv("EXECUTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("EXECUTOR_TEST_DSN not set; skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)
	for _, table := range []string{"outbox_entries", "idempotency_records", "executor_test_counters"} {
		_, err = pool.Exec(ctx, "TRUNCATE "+table)
		require.NoError(t, err)
	}

	tenantID := uuid.New()
	ctx = composables.WithPool(ctx, pool)
	ctx = composables.WithTenantID(ctx, tenantID)
	ctx = composables.WithActorID(ctx, uuid.New())
	return ctx, pool, tenantID
}

func newExecutor() *Executor {
	return New(idempotency.NewStore(time.Hour), outbox.NewPublisher(), nil, Options{TxTimeout: 10 * time.Second})
}

func incrementCounter(name string, events []Event) Mutate {
	return func(ctx context.Context) (*Outcome, error) {
		tx, err := composables.UseTx(ctx)
		if err != nil {
			return nil, err
		}
		tenantID, err := composables.UseTenantID(ctx)
		if err != nil {
			return nil, err
		}

		var value int
		err = tx.QueryRow(ctx, `INSERT INTO executor_test_counters (tenant_id, name, value)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (tenant_id, name) DO UPDATE SET value = executor_test_counters.value + 1
			 RETURNING value`, tenantID, name).Scan(&value)
		if err != nil {
			return nil, err
		}

		return &Outcome{
			Result: map[string]any{"name": name, "value": value},
			Events: events,
		}, nil
	}
}

func countRows(t *testing.T, pool *pgxpool.Pool, q string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), q, args...).Scan(&n))
	return n
}

func TestExecuteWritesStateAndOutboxAtomically(t *testing.T) {
	ctx, pool, tenantID := newTestCtx(t)
	exec := newExecutor()

	events := []Event{
		{Type: "counter.incremented.v1", Payload: map[string]string{"name": "a"}},
		{Type: "counter.audited.v1", Payload: map[string]string{"name": "a"}},
	}

	resp, err := exec.Execute(ctx, Command{Name: "counter.increment"}, incrementCounter("a", events))
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"a","value":1}`, string(resp))

	require.Equal(t, 2, countRows(t, pool,
		`SELECT count(*) FROM outbox_entries WHERE tenant_id = $1 AND status = 'pending'`, tenantID))
	require.Equal(t, 1, countRows(t, pool,
		`SELECT count(*) FROM executor_test_counters WHERE tenant_id = $1`, tenantID))
}

func TestExecuteRollsBackEverythingOnMutationFailure(t *testing.T) {
	ctx, pool, tenantID := newTestCtx(t)
	exec := newExecutor()

	boom := errors.New("boom")
	mutate := func(ctx context.Context) (*Outcome, error) {
		tx, err := composables.UseTx(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO executor_test_counters (tenant_id, name, value) VALUES ($1, 'doomed', 1)`, tenantID); err != nil {
			return nil, err
		}
		return nil, boom
	}

	_, err := exec.Execute(ctx, Command{Name: "counter.doomed", IdempotencyKey: "req-1"}, mutate)
	require.ErrorIs(t, err, boom)

	require.Zero(t, countRows(t, pool, `SELECT count(*) FROM executor_test_counters WHERE tenant_id = $1`, tenantID))
	require.Zero(t, countRows(t, pool, `SELECT count(*) FROM outbox_entries WHERE tenant_id = $1`, tenantID))
	require.Zero(t, countRows(t, pool, `SELECT count(*) FROM idempotency_records WHERE tenant_id = $1`, tenantID))
}

func TestExecuteReplaysIdempotentRequestWithoutSideEffects(t *testing.T) {
	ctx, pool, tenantID := newTestCtx(t)
	exec := newExecutor()

	events := []Event{{Type: "counter.incremented.v1", Payload: map[string]string{"name": "a"}}}
	cmd := Command{Name: "counter.increment", IdempotencyKey: "client-req-1"}

	first, err := exec.Execute(ctx, cmd, incrementCounter("a", events))
	require.NoError(t, err)

	second, err := exec.Execute(ctx, cmd, incrementCounter("a", events))
	require.NoError(t, err)

	// Byte-identical replay, exactly one set of side effects.
	require.Equal(t, string(first), string(second))
	require.Equal(t, 1, countRows(t, pool, `SELECT count(*) FROM outbox_entries WHERE tenant_id = $1`, tenantID))

	var value int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT value FROM executor_test_counters WHERE tenant_id = $1 AND name = 'a'`, tenantID).Scan(&value))
	require.Equal(t, 1, value)
}

func TestExecuteConcurrentSameKeyYieldsOneExecution(t *testing.T) {
	ctx, pool, tenantID := newTestCtx(t)
	exec := newExecutor()

	events := []Event{{Type: "counter.incremented.v1", Payload: map[string]string{"name": "race"}}}
	cmd := Command{Name: "counter.increment", IdempotencyKey: "race-key"}

	const workers = 8
	responses := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := exec.Execute(ctx, cmd, incrementCounter("race", events))
			responses[i], errs[i] = string(resp), err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, responses[0], responses[i])
	}

	var value int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT value FROM executor_test_counters WHERE tenant_id = $1 AND name = 'race'`, tenantID).Scan(&value))
	require.Equal(t, 1, value)
	require.Equal(t, 1, countRows(t, pool, `SELECT count(*) FROM outbox_entries WHERE tenant_id = $1`, tenantID))
}

func TestExecuteRequiresTenant(t *testing.T) {
	dsn := os.Getenv("EXECUTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("EXECUTOR_TEST_DSN not set; skipping integration test")
	}

	exec := newExecutor()
	_, err := exec.Execute(context.Background(), Command{Name: "noop"}, func(context.Context) (*Outcome, error) {
		t.Fatal("mutation must not run without a tenant")
		return nil, nil
	})
	require.Error(t, err)
	require.Equal(t, serrors.CodeValidation, serrors.Code(err))
}

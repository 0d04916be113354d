package composables

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/venuehq/venue-sdk/pkg/constants"
)

// ApplyTenantScope pins the transaction to the tenant in the context via a
// transaction-local setting, so row level security policies can reference
// current_setting('app.current_tenant').
func ApplyTenantScope(ctx context.Context, tx pgx.Tx) error {
	tenantID, err := UseTenantID(ctx)
	if err != nil {
		return fmt.Errorf("tenant scope requires tenant in context: %w", err)
	}
	_, err = tx.Exec(ctx, "SELECT set_config('app.current_tenant', $1, true)", tenantID.String())
	if err != nil {
		return fmt.Errorf("failed to set tenant scope: %w", err)
	}
	return nil
}

// InTenantTx runs fn inside a tenant-scoped transaction. An existing
// transaction in the context is reused, otherwise a new one is opened with a
// bounded deadline so a stalled command cannot hold row locks indefinitely.
func InTenantTx(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if existing, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && existing != nil {
		if err := ApplyTenantScope(ctx, existing); err != nil {
			return err
		}
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := WithTx(ctx, tx)
	if err := ApplyTenantScope(txCtx, tx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}

	if err := fn(txCtx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

func InTenantTxResult[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := InTenantTx(ctx, timeout, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}

package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/modules/orders/domain/order"
	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/repo"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

const (
	ordersTable = "orders"
	linesTable  = "order_line_items"
)

type OrderRepository struct{}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	const q = `INSERT INTO ` + ordersTable + ` (id, tenant_id, status, table_label, notes, version)
		 VALUES ($1, $2, $3, $4, $5, 1)
		 RETURNING number, version, created_at, updated_at`

	err = tx.QueryRow(ctx, q, o.ID, o.TenantID, o.Status, o.TableLabel, o.Notes).
		Scan(&o.Number, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error) {
	return r.get(ctx, tenantID, id, false)
}

// GetByIDForUpdate locks the order row until the surrounding transaction
// commits. Anything computed from the order's lines while the row is held
// (such as the next line position) cannot race another writer.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error) {
	return r.get(ctx, tenantID, id, true)
}

func (r *OrderRepository) get(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*order.Order, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	q := `SELECT id, tenant_id, number, status, table_label, notes, version, created_at, updated_at
	      FROM ` + ordersTable + `
	     WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		q += " FOR UPDATE"
	}

	var o order.Order
	err = tx.QueryRow(ctx, q, tenantID, id).Scan(
		&o.ID, &o.TenantID, &o.Number, &o.Status, &o.TableLabel, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if repo.IsNoRows(err) {
		return nil, serrors.NewNotFoundError(order.EntityType)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if o.Lines, err = r.lines(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) lines(ctx context.Context, orderID uuid.UUID) ([]order.LineItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	const q = `SELECT id, order_id, position, sku, name, quantity, unit_price_cents, total_cents
		   FROM ` + linesTable + `
		  WHERE order_id = $1
		  ORDER BY position`

	rows, err := tx.Query(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]order.LineItem, 0)
	for rows.Next() {
		var l order.LineItem
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Position, &l.SKU, &l.Name, &l.Quantity, &l.UnitPriceCents, &l.TotalCents); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// UpdatePatch applies the present fields with a compare-and-swap on version.
// Zero rows affected is resolved by re-reading inside the same transaction:
// a missing row is NOT_FOUND, a changed version is VERSION_CONFLICT and a
// terminal status is its own conflict code.
func (r *OrderRepository) UpdatePatch(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64, patch *repo.Patch) (*order.Order, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	setClause, args := patch.SetClause(1)
	next := patch.NextPlaceholder(1)
	q := fmt.Sprintf(
		`UPDATE %s SET %s, version = version + 1, updated_at = now()
		  WHERE tenant_id = $%d AND id = $%d AND version = $%d AND status = '%s'`,
		ordersTable, setClause, next, next+1, next+2, order.StatusOpen,
	)
	args = append(args, tenantID, id, expectedVersion)

	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("patch order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, r.resolveZeroRows(ctx, tenantID, id, expectedVersion)
	}

	return r.GetByID(ctx, tenantID, id)
}

// AddLine appends a line item. The order row is read FOR UPDATE first, so the
// position computed from the existing lines is stable until commit.
func (r *OrderRepository) AddLine(ctx context.Context, tenantID, orderID uuid.UUID, expectedVersion int64, line *order.LineItem) (*order.Order, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	o, err := r.GetByIDForUpdate(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Version != expectedVersion {
		return nil, serrors.NewVersionConflictError(order.EntityType, expectedVersion, o.Version)
	}
	if o.Status != order.StatusOpen {
		return nil, order.NewOrderNotOpenError(o.Status)
	}

	var position int
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM `+linesTable+` WHERE order_id = $1`, orderID).
		Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("next line position: %w", err)
	}

	line.ID = uuid.New()
	line.OrderID = orderID
	line.Position = position
	line.TotalCents = int64(line.Quantity) * line.UnitPriceCents

	const insert = `INSERT INTO ` + linesTable + ` (id, order_id, position, sku, name, quantity, unit_price_cents, total_cents)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.Exec(ctx, insert, line.ID, orderID, position, line.SKU, line.Name, line.Quantity, line.UnitPriceCents, line.TotalCents); err != nil {
		return nil, fmt.Errorf("insert order line: %w", err)
	}

	// The row is locked and the version already checked; this cannot miss.
	if _, err := tx.Exec(ctx,
		`UPDATE `+ordersTable+` SET version = version + 1, updated_at = now() WHERE id = $1`, orderID); err != nil {
		return nil, fmt.Errorf("bump order version: %w", err)
	}

	return r.GetByID(ctx, tenantID, orderID)
}

// MarkPaid transitions open -> paid with a compare-and-swap on version.
func (r *OrderRepository) MarkPaid(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64) (*order.Order, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	const q = `UPDATE ` + ordersTable + `
		    SET status = '` + string(order.StatusPaid) + `', version = version + 1, updated_at = now()
		  WHERE tenant_id = $1 AND id = $2 AND version = $3 AND status = '` + string(order.StatusOpen) + `'`

	tag, err := tx.Exec(ctx, q, tenantID, id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, r.resolveZeroRows(ctx, tenantID, id, expectedVersion)
	}

	return r.GetByID(ctx, tenantID, id)
}

func (r *OrderRepository) resolveZeroRows(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64) error {
	current, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if current.Status != order.StatusOpen {
		return order.NewOrderNotOpenError(current.Status)
	}
	return serrors.NewVersionConflictError(order.EntityType, expectedVersion, current.Version)
}

package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/modules/orders/domain/order"
	"github.com/venuehq/venue-sdk/modules/orders/infrastructure/persistence"
	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/executor"
	"github.com/venuehq/venue-sdk/pkg/repo"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

// OrderService runs every mutation through the command executor, so state,
// events and the idempotency record commit together. Reads go straight to
// the pool.
type OrderService struct {
	repo *persistence.OrderRepository
	exec *executor.Executor
}

func NewOrderService(orderRepo *persistence.OrderRepository, exec *executor.Executor) *OrderService {
	return &OrderService{repo: orderRepo, exec: exec}
}

func (s *OrderService) Create(ctx context.Context, idempotencyKey string, input order.CreateInput) (json.RawMessage, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, serrors.NewValidationError("tenant is required")
	}

	orderID := uuid.New()
	cmd := executor.Command{
		Name:           "orders.create",
		IdempotencyKey: idempotencyKey,
		EntityType:     order.EntityType,
		EntityID:       orderID.String(),
	}

	return s.exec.Execute(ctx, cmd, func(txCtx context.Context) (*executor.Outcome, error) {
		o := &order.Order{
			ID:         orderID,
			TenantID:   tenantID,
			Status:     order.StatusOpen,
			TableLabel: input.TableLabel,
			Notes:      input.Notes,
			Lines:      []order.LineItem{},
		}
		if err := s.repo.Create(txCtx, o); err != nil {
			return nil, err
		}
		return &executor.Outcome{
			Result: o,
			Events: []executor.Event{{Type: order.TopicOrderCreatedV1, Payload: order.NewEventV1(o, nil)}},
		}, nil
	})
}

func (s *OrderService) AddLine(ctx context.Context, idempotencyKey string, orderID uuid.UUID, input order.AddLineInput) (json.RawMessage, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, serrors.NewValidationError("tenant is required")
	}

	cmd := executor.Command{
		Name:           "orders.add_line",
		IdempotencyKey: idempotencyKey,
		EntityType:     order.EntityType,
		EntityID:       orderID.String(),
	}

	return s.exec.Execute(ctx, cmd, func(txCtx context.Context) (*executor.Outcome, error) {
		line := &order.LineItem{
			SKU:            input.SKU,
			Name:           input.Name,
			Quantity:       input.Quantity,
			UnitPriceCents: input.UnitPriceCents,
		}
		o, err := s.repo.AddLine(txCtx, tenantID, orderID, input.ExpectedVersion, line)
		if err != nil {
			return nil, err
		}
		return &executor.Outcome{
			Result: o,
			Events: []executor.Event{{Type: order.TopicOrderLineAddedV1, Payload: order.NewEventV1(o, line)}},
		}, nil
	})
}

func (s *OrderService) Update(ctx context.Context, idempotencyKey string, orderID uuid.UUID, input order.UpdateInput) (json.RawMessage, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, serrors.NewValidationError("tenant is required")
	}
	if input.IsEmpty() {
		return nil, serrors.NewValidationError("at least one field must be provided")
	}

	patch := repo.NewPatch()
	if input.TableLabel != nil {
		patch.Set("table_label", *input.TableLabel)
	}
	if input.Notes != nil {
		patch.Set("notes", *input.Notes)
	}

	cmd := executor.Command{
		Name:           "orders.update",
		IdempotencyKey: idempotencyKey,
		EntityType:     order.EntityType,
		EntityID:       orderID.String(),
	}

	return s.exec.Execute(ctx, cmd, func(txCtx context.Context) (*executor.Outcome, error) {
		o, err := s.repo.UpdatePatch(txCtx, tenantID, orderID, input.ExpectedVersion, patch)
		if err != nil {
			return nil, err
		}
		return &executor.Outcome{
			Result: o,
			Events: []executor.Event{{Type: order.TopicOrderUpdatedV1, Payload: order.NewEventV1(o, nil)}},
		}, nil
	})
}

func (s *OrderService) Pay(ctx context.Context, idempotencyKey string, orderID uuid.UUID, expectedVersion int64) (json.RawMessage, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, serrors.NewValidationError("tenant is required")
	}

	cmd := executor.Command{
		Name:           "orders.pay",
		IdempotencyKey: idempotencyKey,
		EntityType:     order.EntityType,
		EntityID:       orderID.String(),
	}

	return s.exec.Execute(ctx, cmd, func(txCtx context.Context) (*executor.Outcome, error) {
		o, err := s.repo.MarkPaid(txCtx, tenantID, orderID, expectedVersion)
		if err != nil {
			return nil, err
		}
		return &executor.Outcome{
			Result: o,
			Events: []executor.Event{{Type: order.TopicOrderPaidV1, Payload: order.NewEventV1(o, nil)}},
		}, nil
	})
}

func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, serrors.NewValidationError("tenant is required")
	}
	return s.repo.GetByID(ctx, tenantID, orderID)
}

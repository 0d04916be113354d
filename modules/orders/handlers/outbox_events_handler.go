package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/venuehq/venue-sdk/modules/orders/domain/order"
	"github.com/venuehq/venue-sdk/pkg/application"
	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/outbox"
)

const handlerName = "orders.outbox"

// OutboxEventsHandler consumes orders.* topics off the relay. Delivery is
// at-least-once, so each event id is claimed in processed_events first; a
// redelivered id is skipped without reprocessing.
type OutboxEventsHandler struct {
	log *logrus.Logger
}

func RegisterOutboxEventHandlers(app application.Application) {
	handler := &OutboxEventsHandler{log: app.Logger()}
	app.EventPublisher().Subscribe(handler.onOrderEvent)
}

func (h *OutboxEventsHandler) onOrderEvent(ctx context.Context, msg outbox.DispatchedMessage) error {
	if !strings.HasPrefix(msg.Meta.EventType, "orders.") {
		return nil
	}

	fresh, err := h.claimEvent(ctx, msg)
	if err != nil {
		return err
	}
	if !fresh {
		if h.log != nil {
			h.log.WithFields(logrus.Fields{
				"event_id":   msg.Meta.EventID.String(),
				"event_type": msg.Meta.EventType,
			}).Debug("orders: skipping already processed event")
		}
		return nil
	}

	var ev order.EventV1
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("orders event payload: %w", err)
	}

	if h.log != nil {
		h.log.WithFields(logrus.Fields{
			"event_id":    msg.Meta.EventID.String(),
			"event_type":  msg.Meta.EventType,
			"tenant_id":   ev.TenantID.String(),
			"order_id":    ev.OrderID.String(),
			"status":      ev.Status,
			"total_cents": ev.TotalCents,
		}).Info("orders: event processed")
	}
	return nil
}

// claimEvent inserts (event_id, handler) and reports whether this delivery
// won the claim. The insert commits independently of the handler's own work,
// which is acceptable here because processing is append-only logging.
func (h *OutboxEventsHandler) claimEvent(ctx context.Context, msg outbox.DispatchedMessage) (bool, error) {
	pool, err := composables.UsePool(ctx)
	if err != nil {
		return false, fmt.Errorf("orders handler requires a pool in the relay context: %w", err)
	}

	tag, err := pool.Exec(ctx,
		`INSERT INTO processed_events (event_id, handler) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		msg.Meta.EventID, handlerName)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

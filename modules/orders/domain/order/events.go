package order

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicOrderCreatedV1   = "orders.created.v1"
	TopicOrderLineAddedV1 = "orders.line_added.v1"
	TopicOrderUpdatedV1   = "orders.updated.v1"
	TopicOrderPaidV1      = "orders.paid.v1"

	EventVersionV1 = 1
)

// EventV1 is the payload of every orders.* topic. Consumers dedup on the
// outbox event id, not on anything in here.
type EventV1 struct {
	EventVersion int        `json:"event_version"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	OrderID      uuid.UUID  `json:"order_id"`
	Number       int64      `json:"number"`
	Status       Status     `json:"status"`
	OrderVersion int64      `json:"order_version"`
	TotalCents   int64      `json:"total_cents"`
	ChangedAt    time.Time  `json:"changed_at"`
	Line         *LineItem  `json:"line,omitempty"`
}

func NewEventV1(o *Order, line *LineItem) EventV1 {
	return EventV1{
		EventVersion: EventVersionV1,
		TenantID:     o.TenantID,
		OrderID:      o.ID,
		Number:       o.Number,
		Status:       o.Status,
		OrderVersion: o.Version,
		TotalCents:   o.TotalCents(),
		ChangedAt:    time.Now().UTC(),
		Line:         line,
	}
}

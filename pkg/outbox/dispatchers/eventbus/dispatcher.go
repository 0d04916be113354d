// Package eventbus adapts the in-process event bus to the outbox Dispatcher
// interface: each drained entry is published as (ctx, DispatchedMessage) and
// any subscriber error propagates back so the relay retries.
package eventbus

import (
	"context"

	"github.com/venuehq/venue-sdk/pkg/eventbus"
	"github.com/venuehq/venue-sdk/pkg/outbox"
)

type Dispatcher struct {
	bus eventbus.EventBusWithError
}

func NewDispatcher(bus eventbus.EventBusWithError) (*Dispatcher, error) {
	if bus == nil {
		return nil, outbox.ErrInvalidConfig
	}
	return &Dispatcher{bus: bus}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	return d.bus.PublishE(ctx, msg)
}

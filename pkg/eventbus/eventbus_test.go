package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/venuehq/venue-sdk/pkg/logging"
)

type orderCreated struct {
	orderID string
}

type orderPaid struct{}

func TestPublisher_Publish_NoSubscribers(t *testing.T) {
	logBuffer := bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(&logBuffer)
	log.SetLevel(logrus.WarnLevel)

	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *orderCreated) {
		t.Error("should not be called")
	})
	publisher.Publish(&orderPaid{})

	if output := logBuffer.String(); output == "" {
		t.Error("should have logged")
	} else if !strings.Contains(output, "eventbus.Publish: no matching subscribers") {
		t.Errorf("should have contained no matching subscribers but got: %q", output)
	}
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	called := false
	var got string
	publisher.Subscribe(func(e *orderCreated) {
		called = true
		got = e.orderID
	})
	publisher.Publish(&orderCreated{orderID: "ord-1"})
	if !called {
		t.Error("should be called")
	}
	if got != "ord-1" {
		t.Errorf("expected: %v, got: %v", "ord-1", got)
	}
}

func TestPublisher_PublishE_PropagatesHandlerError(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	bus, ok := publisher.(EventBusWithError)
	if !ok {
		t.Fatal("publisher should implement EventBusWithError")
	}

	handlerErr := errors.New("poison")
	publisher.Subscribe(func(e *orderCreated) error {
		return handlerErr
	})

	if err := bus.PublishE(&orderCreated{}); !errors.Is(err, handlerErr) {
		t.Errorf("expected handler error, got: %v", err)
	}
}

func TestPublisher_PublishE_NoSubscribers(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	bus := publisher.(EventBusWithError)

	if err := bus.PublishE(&orderPaid{}); !errors.Is(err, ErrNoSubscribers) {
		t.Errorf("expected ErrNoSubscribers, got: %v", err)
	}
}

func TestMatchSignature(t *testing.T) {
	if !MatchSignature(func(e *orderCreated) {}, []interface{}{&orderCreated{}}) {
		t.Error("expected true")
	}
	if MatchSignature(func(e *orderCreated) {}, []interface{}{&orderPaid{}}) {
		t.Error("expected false")
	}
	if MatchSignature(func(e *orderCreated) {}, []interface{}{}) {
		t.Error("expected false")
	}
	if MatchSignature(func(e *orderCreated) {}, []interface{}{&orderCreated{}, &orderCreated{}}) {
		t.Error("expected false")
	}
	if !MatchSignature(func(ctx context.Context) {}, []interface{}{context.Background()}) {
		t.Error("expected true")
	}
}

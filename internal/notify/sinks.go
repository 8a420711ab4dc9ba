package notify

import (
	"context"
	"errors"
	"time"

	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// OrderCounter is the order-count path of the analytics aggregator.
type OrderCounter interface {
	IncrementOrder(ctx context.Context, foodID int64, quantity int) error
}

// CounterSink bumps per-food order counters for every committed line.
type CounterSink struct{ Counter OrderCounter }

func (CounterSink) Name() string { return "order_counts" }

func (s CounterSink) HandleOrderCommitted(ctx context.Context, ev OrderCommitted) error {
	var errs []error
	for _, l := range ev.Lines {
		if err := s.Counter.IncrementOrder(ctx, l.FoodID, l.Quantity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// KafkaSink publishes an OrderCreated envelope for out-of-process consumers.
type KafkaSink struct {
	Producer Publisher
	Service  string
}

func (KafkaSink) Name() string { return "kafka" }

func (s KafkaSink) HandleOrderCommitted(ctx context.Context, ev OrderCommitted) error {
	items := make([]orders.ItemPrice, 0, len(ev.Lines))
	for _, l := range ev.Lines {
		items = append(items, orders.ItemPrice{FoodID: l.FoodID, Quantity: l.Quantity, PriceCents: l.PriceCents})
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    ev.CommittedAt,
		Producer:      s.Service,
		TraceID:       ev.TraceID,
		CorrelationID: string(orders.PartitionKey(ev.OrderID)),
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:       ev.OrderID,
			UserID:        ev.UserID,
			Items:         items,
			TotalCents:    ev.TotalCents,
			PaymentMethod: ev.PaymentMethod,
		}),
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return s.Producer.Publish(ctx, orders.PartitionKey(ev.OrderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

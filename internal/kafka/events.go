package kafka

import (
	"context"
	"time"

	"github.com/ferremas/orders/internal/clock"
	"github.com/ferremas/orders/internal/orders"
)

type publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// OrderEvents turns domain results into enveloped Kafka messages.
type OrderEvents struct {
	Service       string
	Clock         clock.Clock
	Created       publisher
	StatusChanged publisher
}

func (e *OrderEvents) OrderCreated(ctx context.Context, o orders.Order) error {
	return e.publish(ctx, e.Created, orders.EventOrderCreated, orders.PartitionKey(o.ID),
		orders.CorrelationID(o.ID), orders.NewOrderCreatedPayload(o))
}

func (e *OrderEvents) OrderStatusChanged(ctx context.Context, c orders.StatusChange) error {
	return e.publish(ctx, e.StatusChanged, orders.EventOrderStatusChanged, orders.PartitionKey(c.Order.ID),
		orders.CorrelationID(c.Order.ID), orders.OrderStatusChangedPayload{
			OrderID: c.Order.ID,
			From:    c.From,
			To:      c.Order.Status,
		})
}

func (e *OrderEvents) publish(ctx context.Context, p publisher, eventType string, key []byte, corr string, payload any) error {
	env, err := orders.NewEnvelope(eventType, e.Service, corr, e.now(), payload)
	if err != nil {
		return err
	}
	b, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return p.Publish(ctx, key, b)
}

func (e *OrderEvents) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now()
}

// StockEvents publishes low-stock alerts.
type StockEvents struct {
	Service   string
	Clock     clock.Clock
	Publisher publisher
}

func (e *StockEvents) StockLow(ctx context.Context, p orders.StockLowPayload) error {
	at := time.Now().UTC()
	if e.Clock != nil {
		at = e.Clock.Now()
	}
	env, err := orders.NewEnvelope(orders.EventStockLow, e.Service, "", at, p)
	if err != nil {
		return err
	}
	b, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return e.Publisher.Publish(ctx, orders.StockPartitionKey(p.ProductID, p.BranchID), b)
}

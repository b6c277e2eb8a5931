package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
)

const (
	EventOrderPlaced      = "order.placed"
	EventStockDiscrepancy = "checkout.discrepancy"
)

type Event struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id,omitempty"`
	StoreID   string    `json:"store_id"`
	CreatedAt time.Time `json:"created_at"`
	Payload   any       `json:"payload"`
}

// KafkaPublisher writes order.placed events keyed by order id and
// discrepancy alerts keyed by store id.
type KafkaPublisher struct {
	orders messageWriter
	alerts messageWriter
	newID  func() string
}

func NewKafkaPublisher(client *Client, ordersTopic, alertsTopic string) *KafkaPublisher {
	return newKafkaPublisher(client.NewWriter(ordersTopic), client.NewWriter(alertsTopic))
}

func newKafkaPublisher(orders, alerts messageWriter) *KafkaPublisher {
	return &KafkaPublisher{orders: orders, alerts: alerts, newID: uuid.NewString}
}

func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	ev := Event{
		EventID:   p.newID(),
		Type:      EventOrderPlaced,
		OrderID:   order.ID,
		StoreID:   order.StoreID,
		CreatedAt: time.Now().UTC(),
		Payload:   order,
	}
	if err := publishJSON(ctx, p.orders, order.ID, ev); err != nil {
		return fmt.Errorf("publish %s for %s: %w", EventOrderPlaced, order.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) PublishDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	ev := Event{
		EventID:   p.newID(),
		Type:      EventStockDiscrepancy,
		OrderID:   d.OrderID,
		StoreID:   d.StoreID,
		CreatedAt: time.Now().UTC(),
		Payload:   d,
	}
	if err := publishJSON(ctx, p.alerts, d.StoreID, ev); err != nil {
		return fmt.Errorf("publish %s for %s: %w", EventStockDiscrepancy, d.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return errors.Join(p.orders.Close(), p.alerts.Close())
}

// LogPublisher stands in when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	logger.Info("event %s: order %s store %s total %s", EventOrderPlaced, order.ID, order.StoreID, order.TotalAmount.StringFixed(2))
	return nil
}

func (LogPublisher) PublishDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	logger.Critical("event %s: %s at store %s for user %s", nil, EventStockDiscrepancy, d.Kind, d.StoreID, d.UserID)
	return nil
}

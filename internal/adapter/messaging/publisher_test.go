package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewClient(t *testing.T) {
	c := NewClient(" broker-1:9092, ,broker-2:9092 ")
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, c.Brokers)
	assert.True(t, c.Enabled())
	assert.False(t, NewClient("").Enabled())

	w := c.NewWriter("orders.placed")
	assert.Equal(t, "orders.placed", w.Topic)
}

func TestPublishOrderPlaced(t *testing.T) {
	orders, alerts := &fakeWriter{}, &fakeWriter{}
	p := newKafkaPublisher(orders, alerts)
	p.newID = func() string { return "evt-1" }

	order := domain.Order{ID: "o1", StoreID: "s1", UserID: "u1", TotalAmount: decimal.NewFromInt(600)}
	require.NoError(t, p.PublishOrderPlaced(context.Background(), order))

	require.Len(t, orders.messages, 1)
	assert.Empty(t, alerts.messages)
	msg := orders.messages[0]
	assert.Equal(t, "o1", string(msg.Key))

	var ev struct {
		EventID string       `json:"event_id"`
		Type    string       `json:"type"`
		OrderID string       `json:"order_id"`
		Payload domain.Order `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, EventOrderPlaced, ev.Type)
	assert.Equal(t, "o1", ev.OrderID)
	assert.True(t, ev.Payload.TotalAmount.Equal(decimal.NewFromInt(600)))
}

func TestPublishDiscrepancy_KeyedByStore(t *testing.T) {
	orders, alerts := &fakeWriter{}, &fakeWriter{}
	p := newKafkaPublisher(orders, alerts)

	d := domain.Discrepancy{ID: "d1", Kind: domain.DiscrepancyOrderNotPersisted, StoreID: "s9"}
	require.NoError(t, p.PublishDiscrepancy(context.Background(), d))

	require.Len(t, alerts.messages, 1)
	assert.Equal(t, "s9", string(alerts.messages[0].Key))
	assert.Contains(t, string(alerts.messages[0].Value), EventStockDiscrepancy)
}

func TestPublish_WrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, &fakeWriter{})

	err := p.PublishOrderPlaced(context.Background(), domain.Order{ID: "o1"})
	assert.ErrorIs(t, err, boom)
}

func TestClose_ClosesBothWriters(t *testing.T) {
	orders, alerts := &fakeWriter{}, &fakeWriter{}
	require.NoError(t, newKafkaPublisher(orders, alerts).Close())
	assert.True(t, orders.closed)
	assert.True(t, alerts.closed)
}

func TestLogPublisher(t *testing.T) {
	var p LogPublisher
	assert.NoError(t, p.PublishOrderPlaced(context.Background(), domain.Order{ID: "o1"}))
	assert.NoError(t, p.PublishDiscrepancy(context.Background(), domain.Discrepancy{ID: "d1"}))
}

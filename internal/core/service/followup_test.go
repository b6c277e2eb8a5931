package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/quick-commerce/internal/adapter/storage"
	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type recordingPublisher struct {
	mu            sync.Mutex
	placed        []string
	discrepancies []string
}

func (p *recordingPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, order.ID)
	return nil
}

func (p *recordingPublisher) PublishDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discrepancies = append(p.discrepancies, d.ID)
	return nil
}

func (p *recordingPublisher) placedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.placed...)
}

func TestFollowUpDispatcher_ProcessesQueuedOrders(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	pub := &recordingPublisher{}
	d := NewFollowUpDispatcher(mem, pub, 10)
	d.Start(3)

	for _, id := range []string{"o1", "o2", "o3"} {
		d.Enqueue(domain.Order{ID: id, UserID: "u-" + id, ShippingAddress: address, Location: customer})
	}
	d.Close()

	assert.ElementsMatch(t, []string{"o1", "o2", "o3"}, pub.placedIDs())
	addr, loc, ok := mem.LastAddress("u-o2")
	require.True(t, ok)
	assert.Equal(t, address, addr)
	assert.Equal(t, customer, loc)
}

func TestFollowUpDispatcher_RunsInlineWhenQueueFull(t *testing.T) {
	pub := &recordingPublisher{}
	// no workers and no buffer: every enqueue falls back to the caller
	d := NewFollowUpDispatcher(nil, pub, 0)

	d.Enqueue(domain.Order{ID: "o1"})
	assert.Equal(t, []string{"o1"}, pub.placedIDs())
}

func TestFollowUpDispatcher_RunsInlineAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewFollowUpDispatcher(nil, pub, 10)
	d.Start(1)
	d.Close()
	d.Close()

	d.Enqueue(domain.Order{ID: "late"})
	assert.Equal(t, []string{"late"}, pub.placedIDs())
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
	"github.com/rl1809/quick-commerce/internal/port"
)

const followUpTimeout = 5 * time.Second

// FollowUpDispatcher runs the non-critical side effects of a placed order on
// a worker pool: saving the address as the user's default and publishing
// order.placed. A failure here never fails the order.
type FollowUpDispatcher struct {
	profiles port.ProfileRepository
	events   port.EventPublisher
	queue    chan domain.Order
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewFollowUpDispatcher(profiles port.ProfileRepository, events port.EventPublisher, queueSize int) *FollowUpDispatcher {
	return &FollowUpDispatcher{
		profiles: profiles,
		events:   events,
		queue:    make(chan domain.Order, queueSize),
	}
}

func (d *FollowUpDispatcher) Start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	logger.Info("started %d follow-up workers", workerCount)
}

// Enqueue hands the order to a worker. When the queue is full or the
// dispatcher is closed the follow-up runs on the caller's goroutine.
func (d *FollowUpDispatcher) Enqueue(order domain.Order) {
	d.mu.RLock()
	if !d.closed {
		select {
		case d.queue <- order:
			d.mu.RUnlock()
			return
		default:
		}
	}
	d.mu.RUnlock()

	logger.Warn("follow-up queue unavailable, running inline for order %s", order.ID)
	d.process(-1, order)
}

// Close stops accepting work and waits for queued follow-ups to finish.
func (d *FollowUpDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *FollowUpDispatcher) workerLoop(id int) {
	for order := range d.queue {
		d.process(id, order)
	}
}

func (d *FollowUpDispatcher) process(id int, order domain.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
	defer cancel()

	if d.profiles != nil {
		if err := d.profiles.SaveLastAddress(ctx, order.UserID, order.ShippingAddress, order.Location); err != nil {
			logger.Warn("worker %d: failed to save default address for user %s (order %s): %v", id, order.UserID, order.ID, err)
		}
	}

	if d.events != nil {
		if err := d.events.PublishOrderPlaced(ctx, order); err != nil {
			logger.Warn("worker %d: failed to publish order.placed for %s: %v", id, order.ID, err)
		}
	}
}

package port

import (
	"context"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order domain.Order) error
	PublishDiscrepancy(ctx context.Context, d domain.Discrepancy) error
}

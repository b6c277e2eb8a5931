package port

import (
	"context"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists an order and its lines in one transaction
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns nil, nil when the order does not exist.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

type CartRepository interface {
	// GetCart returns an empty cart when the user has none.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error

	// ClearCart removes every item and detaches the store.
	ClearCart(ctx context.Context, userID string) error
}

type ProfileRepository interface {
	SaveLastAddress(ctx context.Context, userID string, address domain.Address, location domain.Location) error
}

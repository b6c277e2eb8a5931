package port

import (
	"context"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type StoreCatalog interface {
	// ListActiveStores returns active stores in catalog (creation) order.
	ListActiveStores(ctx context.Context) ([]domain.Store, error)
}

type ProductCatalog interface {
	// GetProduct returns nil, nil when the product does not exist.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// GetStorePrice returns nil, nil when the store has no override.
	GetStorePrice(ctx context.Context, storeID, productID string) (*domain.StorePrice, error)
}

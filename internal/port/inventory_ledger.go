package port

import (
	"context"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type InventoryLedger interface {
	// CheckAvailability returns the quantity on hand; a missing record counts as zero.
	CheckAvailability(ctx context.Context, storeID, productID string) (int, error)

	// ReserveAndDecrement atomically decreases stock, returns false if insufficient
	ReserveAndDecrement(ctx context.Context, storeID, productID string, quantity int) (bool, error)

	// ReserveLines decrements every line at one store or none of them,
	// returns false if any line is insufficient
	ReserveLines(ctx context.Context, storeID string, lines []domain.LineItem) (bool, error)

	// Restock increases stock (manual restock and reconciliation)
	Restock(ctx context.Context, storeID, productID string, quantity int) error
}

// InventorySnapshot lists every inventory record, used to seed a cache ledger.
type InventorySnapshot interface {
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
}

package service

import (
	"context"
	"fmt"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/port"
)

type Selection struct {
	Store      domain.Store
	DistanceKm float64
}

// FulfillmentSelector finds the nearest active store that can supply every
// line of an order. The result is a snapshot read and reserves nothing.
type FulfillmentSelector struct {
	stores port.StoreCatalog
	ledger port.InventoryLedger
}

func NewFulfillmentSelector(stores port.StoreCatalog, ledger port.InventoryLedger) *FulfillmentSelector {
	return &FulfillmentSelector{stores: stores, ledger: ledger}
}

// SelectStore returns ErrNoEligibleStore when no active store holds enough
// stock for all lines. Stores are scanned linearly in catalog order and the
// first store wins a distance tie.
func (s *FulfillmentSelector) SelectStore(ctx context.Context, items []domain.LineItem, location domain.Location) (*Selection, error) {
	lines := domain.MergeLines(items)

	stores, err := s.stores.ListActiveStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active stores: %w", err)
	}

	var best *Selection
	for _, store := range stores {
		if !store.IsActive {
			continue
		}

		ok, err := s.canFulfil(ctx, store.ID, lines)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		distance := location.DistanceTo(store.Location)
		if best == nil || distance < best.DistanceKm {
			best = &Selection{Store: store, DistanceKm: distance}
		}
	}

	if best == nil {
		return nil, ErrNoEligibleStore
	}
	return best, nil
}

func (s *FulfillmentSelector) canFulfil(ctx context.Context, storeID string, lines []domain.LineItem) (bool, error) {
	for _, line := range lines {
		available, err := s.ledger.CheckAvailability(ctx, storeID, line.ProductID)
		if err != nil {
			return false, fmt.Errorf("check availability store %s product %s: %w", storeID, line.ProductID, err)
		}
		if available < line.Quantity {
			return false, nil
		}
	}
	return true, nil
}

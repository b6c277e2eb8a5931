package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/quick-commerce/internal/adapter/storage"
	"github.com/rl1809/quick-commerce/internal/core/domain"
)

// one degree of latitude in km on the haversine sphere
const kmPerDegreeLat = 111.19492664455873

var (
	customer = domain.Location{Lat: 12.9716, Lng: 77.5946}
	address  = domain.Address{Name: "Asha", Street: "12 MG Road", City: "Bengaluru", PostalCode: "560001"}
	baseTime = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
)

// north returns a location km kilometres due north of the customer.
func north(km float64) domain.Location {
	return domain.Location{Lat: customer.Lat + km/kmPerDegreeLat, Lng: customer.Lng}
}

func locPtr(l domain.Location) *domain.Location { return &l }

type fixture struct {
	mem *storage.MemoryAdapter
	svc *CheckoutService
}

// newFixture seeds store A at 1 km and store B at 3 km, both stocking p1 at
// 100.00.
func newFixture(stockA, stockB int) *fixture {
	ctx := context.Background()
	mem := storage.NewMemoryAdapter()
	mem.PutStore(domain.Store{ID: "A", Name: "Store A", IsActive: true, Location: north(1), CreatedAt: baseTime})
	mem.PutStore(domain.Store{ID: "B", Name: "Store B", IsActive: true, Location: north(3), CreatedAt: baseTime.Add(time.Second)})
	mem.PutProduct(domain.Product{ID: "p1", Name: "Milk", Price: decimal.NewFromInt(100), IsActive: true})
	mem.SetStock(ctx, "A", "p1", stockA)
	mem.SetStock(ctx, "B", "p1", stockB)

	return &fixture{mem: mem, svc: newService(mem, Dependencies{})}
}

// newService fills every unset dependency from the memory adapter.
func newService(mem *storage.MemoryAdapter, deps Dependencies) *CheckoutService {
	if deps.Stores == nil {
		deps.Stores = mem
	}
	if deps.Products == nil {
		deps.Products = mem
	}
	if deps.Ledger == nil {
		deps.Ledger = mem
	}
	if deps.Orders == nil {
		deps.Orders = mem
	}
	if deps.Carts == nil {
		deps.Carts = mem
	}
	if deps.Cache == nil {
		deps.Cache = mem
	}
	if deps.Reconciliation == nil {
		deps.Reconciliation = mem
	}
	return NewCheckoutService(deps, DefaultCheckoutConfig())
}

func (f *fixture) stock(storeID, productID string) int {
	n, _ := f.mem.CheckAvailability(context.Background(), storeID, productID)
	return n
}

func confirmReq(qty int, key string) ConfirmRequest {
	return ConfirmRequest{
		UserID:          "u1",
		Items:           []domain.LineItem{{ProductID: "p1", Quantity: qty}},
		Location:        locPtr(customer),
		ShippingAddress: address,
		PaymentMethod:   "cod",
		IdempotencyKey:  key,
	}
}

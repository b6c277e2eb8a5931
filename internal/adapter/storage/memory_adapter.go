package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type inventoryKey struct {
	storeID   string
	productID string
}

type profile struct {
	address  domain.Address
	location domain.Location
}

// MemoryAdapter keeps the whole catalog, ledger and order book in process.
// It backs tests and local runs; every ledger mutation happens under one
// mutex, which is what makes its conditional decrement atomic.
type MemoryAdapter struct {
	mu          sync.RWMutex
	stores      map[string]domain.Store
	products    map[string]domain.Product
	storePrices map[inventoryKey]domain.StorePrice
	inventory   map[inventoryKey]int
	orders      map[string]domain.Order
	carts       map[string]domain.Cart
	profiles    map[string]profile
	idempotency map[string]time.Time
	idemTTL     time.Duration
	discrepancy map[string]domain.Discrepancy
	now         func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		stores:      make(map[string]domain.Store),
		products:    make(map[string]domain.Product),
		storePrices: make(map[inventoryKey]domain.StorePrice),
		inventory:   make(map[inventoryKey]int),
		orders:      make(map[string]domain.Order),
		carts:       make(map[string]domain.Cart),
		profiles:    make(map[string]profile),
		idempotency: make(map[string]time.Time),
		idemTTL:     idempotencyKeyTTL,
		discrepancy: make(map[string]domain.Discrepancy),
		now:         time.Now,
	}
}

// --- catalog ---

func (m *MemoryAdapter) PutStore(store domain.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if store.CreatedAt.IsZero() {
		store.CreatedAt = m.now()
	}
	m.stores[store.ID] = store
}

func (m *MemoryAdapter) PutProduct(product domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product.UpdatedAt = m.now()
	m.products[product.ID] = product
}

func (m *MemoryAdapter) PutStorePrice(sp domain.StorePrice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storePrices[inventoryKey{sp.StoreID, sp.ProductID}] = sp
}

func (m *MemoryAdapter) ListActiveStores(ctx context.Context) ([]domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stores := make([]domain.Store, 0, len(m.stores))
	for _, s := range m.stores {
		if s.IsActive {
			stores = append(stores, s)
		}
	}
	sort.Slice(stores, func(i, j int) bool {
		if !stores[i].CreatedAt.Equal(stores[j].CreatedAt) {
			return stores[i].CreatedAt.Before(stores[j].CreatedAt)
		}
		return stores[i].ID < stores[j].ID
	})
	return stores, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryAdapter) GetStorePrice(ctx context.Context, storeID, productID string) (*domain.StorePrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sp, ok := m.storePrices[inventoryKey{storeID, productID}]
	if !ok {
		return nil, nil
	}
	return &sp, nil
}

// --- ledger ---

func (m *MemoryAdapter) SetStock(ctx context.Context, storeID, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory[inventoryKey{storeID, productID}] = quantity
	return nil
}

func (m *MemoryAdapter) CheckAvailability(ctx context.Context, storeID, productID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inventory[inventoryKey{storeID, productID}], nil
}

func (m *MemoryAdapter) ReserveAndDecrement(ctx context.Context, storeID, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inventoryKey{storeID, productID}
	if m.inventory[key] < quantity {
		return false, nil
	}
	m.inventory[key] -= quantity
	return true, nil
}

func (m *MemoryAdapter) ReserveLines(ctx context.Context, storeID string, lines []domain.LineItem) (bool, error) {
	lines = domain.MergeLines(lines)
	for _, l := range lines {
		if l.Quantity <= 0 {
			return false, ErrInvalidQuantity
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range lines {
		if m.inventory[inventoryKey{storeID, l.ProductID}] < l.Quantity {
			return false, nil
		}
	}
	for _, l := range lines {
		m.inventory[inventoryKey{storeID, l.ProductID}] -= l.Quantity
	}
	return true, nil
}

func (m *MemoryAdapter) Restock(ctx context.Context, storeID, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory[inventoryKey{storeID, productID}] += quantity
	return nil
}

func (m *MemoryAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]domain.InventoryRecord, 0, len(m.inventory))
	for k, q := range m.inventory {
		records = append(records, domain.InventoryRecord{StoreID: k.storeID, ProductID: k.productID, Quantity: q})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].StoreID != records[j].StoreID {
			return records[i].StoreID < records[j].StoreID
		}
		return records[i].ProductID < records[j].ProductID
	})
	return records, nil
}

// --- orders ---

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.ID]; exists {
		return ErrOrderExists
	}
	order.Lines = append([]domain.OrderLine(nil), order.Lines...)
	m.orders[order.ID] = order
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &o, nil
}

func (m *MemoryAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			o.Lines = append([]domain.OrderLine(nil), o.Lines...)
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// --- carts and profiles ---

func (m *MemoryAdapter) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[userID]
	if !ok {
		return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
	}
	c.Items = append([]domain.CartItem{}, c.Items...)
	return &c, nil
}

func (m *MemoryAdapter) SaveCart(ctx context.Context, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart.Items = append([]domain.CartItem{}, cart.Items...)
	cart.UpdatedAt = m.now()
	m.carts[cart.UserID] = cart
	return nil
}

func (m *MemoryAdapter) ClearCart(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = domain.Cart{UserID: userID, Items: []domain.CartItem{}, UpdatedAt: m.now()}
	return nil
}

func (m *MemoryAdapter) SaveLastAddress(ctx context.Context, userID string, address domain.Address, location domain.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = profile{address: address, location: location}
	return nil
}

// LastAddress returns the saved default address of a user.
func (m *MemoryAdapter) LastAddress(userID string) (domain.Address, domain.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	return p.address, p.location, ok
}

// --- idempotency and reconciliation ---

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.idempotency[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.idempotency[key] = now.Add(m.idemTTL)
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotency, key)
	return nil
}

func (m *MemoryAdapter) RecordDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discrepancy[d.ID] = d
	return nil
}

func (m *MemoryAdapter) ListPending(ctx context.Context) ([]domain.Discrepancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := []domain.Discrepancy{}
	for _, d := range m.discrepancy {
		if d.ResolvedAt == nil {
			pending = append(pending, d)
		}
	}
	sortDiscrepancies(pending)
	return pending, nil
}

func (m *MemoryAdapter) MarkResolved(ctx context.Context, id string) (*domain.Discrepancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.discrepancy[id]
	if !ok || d.ResolvedAt != nil {
		return nil, nil
	}
	now := m.now().UTC()
	d.ResolvedAt = &now
	m.discrepancy[id] = d
	return &d, nil
}

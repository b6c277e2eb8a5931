package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

func newTestRedis(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisAdapter(client), srv
}

func TestRedisStockKey_UsesStoreHashTag(t *testing.T) {
	if got := stockKey("s1", "p1"); got != "stock:{s1}:p1" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestRedisReserveAndDecrement_Success(t *testing.T) {
	adapter, srv := newTestRedis(t)
	ctx := context.Background()

	if err := adapter.SetStock(ctx, "s1", "p1", 10); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	ok, err := adapter.ReserveAndDecrement(ctx, "s1", "p1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected success")
	}

	stock, _ := srv.Get("stock:{s1}:p1")
	if stock != "7" {
		t.Errorf("expected stock 7, got %s", stock)
	}
}

func TestRedisReserveAndDecrement_InsufficientStock(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	adapter.SetStock(ctx, "s1", "p1", 5)

	ok, err := adapter.ReserveAndDecrement(ctx, "s1", "p1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure due to insufficient stock")
	}

	stock, _ := adapter.CheckAvailability(ctx, "s1", "p1")
	if stock != 5 {
		t.Errorf("expected stock 5, got %d", stock)
	}
}

func TestRedisReserveAndDecrement_KeyNotExists(t *testing.T) {
	adapter, _ := newTestRedis(t)

	ok, err := adapter.ReserveAndDecrement(context.Background(), "s1", "missing", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure for missing key")
	}
}

func TestRedisReserveAndDecrement_RejectsNonPositive(t *testing.T) {
	adapter, _ := newTestRedis(t)

	if _, err := adapter.ReserveAndDecrement(context.Background(), "s1", "p1", 0); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestRedisReserveAndDecrement_Concurrent(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	initialStock := 20
	totalRequests := 50
	adapter.SetStock(ctx, "s1", "hot", initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.ReserveAndDecrement(ctx, "s1", "hot", 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	stock, _ := adapter.CheckAvailability(ctx, "s1", "hot")
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestRedisCheckAvailability_MissingIsZero(t *testing.T) {
	adapter, _ := newTestRedis(t)

	n, err := adapter.CheckAvailability(context.Background(), "s1", "nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestRedisReserveLines_AllOrNothing(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	adapter.SetStock(ctx, "s1", "p1", 5)
	adapter.SetStock(ctx, "s1", "p2", 1)

	ok, err := adapter.ReserveLines(ctx, "s1", []domain.LineItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected reservation to fail")
	}

	p1, _ := adapter.CheckAvailability(ctx, "s1", "p1")
	p2, _ := adapter.CheckAvailability(ctx, "s1", "p2")
	if p1 != 5 || p2 != 1 {
		t.Errorf("stock changed after failed reservation: p1=%d p2=%d", p1, p2)
	}

	ok, err = adapter.ReserveLines(ctx, "s1", []domain.LineItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected reservation to succeed")
	}

	p1, _ = adapter.CheckAvailability(ctx, "s1", "p1")
	p2, _ = adapter.CheckAvailability(ctx, "s1", "p2")
	if p1 != 2 || p2 != 0 {
		t.Errorf("unexpected stock after reservation: p1=%d p2=%d", p1, p2)
	}
}

func TestRedisReserveLines_MissingKeyFails(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	adapter.SetStock(ctx, "s1", "p1", 5)

	ok, err := adapter.ReserveLines(ctx, "s1", []domain.LineItem{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "unknown", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure for unknown product")
	}
	if n, _ := adapter.CheckAvailability(ctx, "s1", "p1"); n != 5 {
		t.Errorf("expected stock 5, got %d", n)
	}
}

func TestRedisRestock(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	adapter.SetStock(ctx, "s1", "p1", 5)
	if err := adapter.Restock(ctx, "s1", "p1", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := adapter.CheckAvailability(ctx, "s1", "p1"); n != 8 {
		t.Errorf("expected stock 8, got %d", n)
	}
}

func TestRedisLoadStock(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	mem := NewMemoryAdapter()
	mem.SetStock(ctx, "s1", "p1", 4)
	mem.SetStock(ctx, "s2", "p1", 9)

	loaded, skipped, err := adapter.LoadStock(ctx, mem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != 2 || skipped != 0 {
		t.Errorf("expected 2 loaded and 0 skipped, got %d and %d", loaded, skipped)
	}
	if got, _ := adapter.CheckAvailability(ctx, "s2", "p1"); got != 9 {
		t.Errorf("expected stock 9, got %d", got)
	}
}

func TestRedisLoadStock_KeepsLiveCountsOnReload(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	mem := NewMemoryAdapter()
	mem.SetStock(ctx, "A", "p1", 5)
	mem.SetStock(ctx, "A", "p2", 3)

	if _, _, err := adapter.LoadStock(ctx, mem); err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	ok, err := adapter.ReserveAndDecrement(ctx, "A", "p1", 5)
	if err != nil || !ok {
		t.Fatalf("expected decrement to succeed, got %v, %v", ok, err)
	}

	// a product added to storage after the first load
	mem.SetStock(ctx, "B", "p1", 7)

	loaded, skipped, err := adapter.LoadStock(ctx, mem)
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if loaded != 1 || skipped != 2 {
		t.Errorf("expected 1 loaded and 2 skipped, got %d and %d", loaded, skipped)
	}
	if n, _ := adapter.CheckAvailability(ctx, "A", "p1"); n != 0 {
		t.Errorf("sold units came back on reload: stock %d", n)
	}
	if n, _ := adapter.CheckAvailability(ctx, "B", "p1"); n != 7 {
		t.Errorf("expected new key seeded with 7, got %d", n)
	}
}

func TestRedisSetIdempotency(t *testing.T) {
	adapter, srv := newTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "checkout:u1:k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	ok, _ = adapter.SetIdempotency(ctx, "checkout:u1:k1")
	if ok {
		t.Error("expected second call to fail")
	}

	if ttl := srv.TTL("checkout:u1:k1"); ttl != idempotencyKeyTTL {
		t.Errorf("expected ttl %s, got %s", idempotencyKeyTTL, ttl)
	}

	if err := adapter.ReleaseIdempotency(ctx, "checkout:u1:k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, _ = adapter.SetIdempotency(ctx, "checkout:u1:k1")
	if !ok {
		t.Error("expected claim after release to succeed")
	}
}

func TestRedisSetIdempotency_Concurrent(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}

func TestRedisReconciliationLog(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	second := domain.Discrepancy{ID: "d2", Kind: domain.DiscrepancyCartNotCleared, UserID: "u2", CreatedAt: base.Add(time.Minute)}
	first := domain.Discrepancy{
		ID: "d1", Kind: domain.DiscrepancyOrderNotPersisted, UserID: "u1", StoreID: "s1", OrderID: "o1",
		Lines: []domain.LineItem{{ProductID: "p1", Quantity: 2}}, CreatedAt: base,
	}
	if err := adapter.RecordDiscrepancy(ctx, second); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := adapter.RecordDiscrepancy(ctx, first); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	pending, err := adapter.ListPending(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "d1" || pending[1].ID != "d2" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}
	if len(pending[0].Lines) != 1 || pending[0].Lines[0].Quantity != 2 {
		t.Errorf("lines not preserved: %+v", pending[0].Lines)
	}

	resolved, err := adapter.MarkResolved(ctx, "d1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved == nil || resolved.ResolvedAt == nil {
		t.Fatal("expected resolved discrepancy with timestamp")
	}

	pending, _ = adapter.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != "d2" {
		t.Errorf("unexpected pending list after resolve: %+v", pending)
	}

	missing, err := adapter.MarkResolved(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown id, got %v, %v", missing, err)
	}

	again, err := adapter.MarkResolved(ctx, "d1")
	if err != nil || again != nil {
		t.Errorf("expected nil, nil for an already resolved id, got %v, %v", again, err)
	}
}

func TestRedisMarkResolved_ConcurrentClaim(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	if err := adapter.RecordDiscrepancy(ctx, domain.Discrepancy{ID: "d1", StoreID: "s1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	var wg sync.WaitGroup
	var claimed atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := adapter.MarkResolved(ctx, "d1")
			if err == nil && d != nil {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := claimed.Load(); got != 1 {
		t.Errorf("expected exactly one claim, got %d", got)
	}
}

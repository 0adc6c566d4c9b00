// internal/service/inventory/infrastructure/memory_engine_test.go
package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/service/inventory/domain"
)

func newTestEngine(t *testing.T, stock int) *MemoryEngine {
	t.Helper()
	e := NewMemoryEngine(2 * time.Second)
	err := e.AddProduct(context.Background(), &domain.Product{
		SKU:        "SKU-1",
		Name:       "Test product",
		PriceCents: 1000,
		Active:     true,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	return e
}

func TestAvailableQuantityExcludesActiveReservations(t *testing.T) {
	e := newTestEngine(t, 5)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, "SKU-1", 2, time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	avail, err := e.AvailableQuantity(ctx, "SKU-1")
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	if avail != 3 {
		t.Fatalf("available = %d, want 3", avail)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	e := newTestEngine(t, 2)
	ctx := context.Background()

	if _, err := e.Reserve(ctx, "SKU-1", 3, time.Minute); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if _, err := e.Reserve(ctx, "SKU-1", 0, time.Minute); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := e.Reserve(ctx, "NOPE", 1, time.Minute); !errors.Is(err, domain.ErrSKUNotFound) {
		t.Fatalf("err = %v, want ErrSKUNotFound", err)
	}
}

// 最后一件商品被并发抢购时恰好一个预占成功。
func TestConcurrentReserveSingleWinner(t *testing.T) {
	e := newTestEngine(t, 1)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	won, insufficient := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Reserve(ctx, "SKU-1", 1, time.Minute)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}
	if insufficient != workers-1 {
		t.Fatalf("insufficient = %d, want %d", insufficient, workers-1)
	}

	avail, err := e.AvailableQuantity(ctx, "SKU-1")
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	if avail != 0 {
		t.Fatalf("available = %d, want 0", avail)
	}
}

func TestCommitDecrementsAuthoritativeStock(t *testing.T) {
	e := newTestEngine(t, 5)
	ctx := context.Background()

	r, err := e.Reserve(ctx, "SKU-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	committed, err := e.Commit(ctx, r.ID, 42)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if committed.Status != domain.StatusCommitted || committed.OrderID != 42 {
		t.Fatalf("reservation = %+v, want committed for order 42", committed)
	}

	p, err := e.ProductBySKU(ctx, "SKU-1")
	if err != nil {
		t.Fatalf("ProductBySKU: %v", err)
	}
	if p.Stock != 3 {
		t.Fatalf("stock = %d, want 3", p.Stock)
	}
	// 提交后的预占不再占用可售数量。
	avail, _ := e.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3", avail)
	}

	if _, err := e.Commit(ctx, r.ID, 42); !errors.Is(err, domain.ErrReservationNotActive) {
		t.Fatalf("second commit err = %v, want ErrReservationNotActive", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	e := newTestEngine(t, 2)
	ctx := context.Background()

	r, err := e.Reserve(ctx, "SKU-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	for i := 0; i < 2; i++ {
		released, err := e.Release(ctx, r.ID)
		if err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
		if released.Status != domain.StatusReleased {
			t.Fatalf("status = %s, want RELEASED", released.Status)
		}
	}
	avail, _ := e.AvailableQuantity(ctx, "SKU-1")
	if avail != 2 {
		t.Fatalf("available = %d, want 2 after release", avail)
	}
}

func TestExpiredReservationFreesAvailability(t *testing.T) {
	e := newTestEngine(t, 1)
	ctx := context.Background()

	r, err := e.Reserve(ctx, "SKU-1", 1, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// TTL 过了即恢复可售，不需要等清扫者跑过。
	avail, _ := e.AvailableQuantity(ctx, "SKU-1")
	if avail != 1 {
		t.Fatalf("available = %d, want 1 after TTL lapse", avail)
	}

	ids, err := e.ExpireOverdue(ctx)
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if len(ids) != 1 || ids[0] != r.ID {
		t.Fatalf("expired ids = %v, want [%d]", ids, r.ID)
	}
	// 再跑一次不会重复过期。
	ids, _ = e.ExpireOverdue(ctx)
	if len(ids) != 0 {
		t.Fatalf("second sweep expired %v, want none", ids)
	}
}

// 库存被竞争者在 reserve 和 commit 之间拿走时，commit 必须拒绝
// 而不是把库存打成负数。
func TestCommitAfterLosingRace(t *testing.T) {
	e := newTestEngine(t, 1)
	ctx := context.Background()

	stale, err := e.Reserve(ctx, "SKU-1", 1, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Reserve stale: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	fresh, err := e.Reserve(ctx, "SKU-1", 1, time.Minute)
	if err != nil {
		t.Fatalf("Reserve fresh: %v", err)
	}
	if _, err := e.Commit(ctx, fresh.ID, 1); err != nil {
		t.Fatalf("Commit fresh: %v", err)
	}

	if _, err := e.Commit(ctx, stale.ID, 2); !errors.Is(err, domain.ErrInventoryRace) {
		t.Fatalf("commit stale err = %v, want ErrInventoryRace", err)
	}
	p, _ := e.ProductBySKU(ctx, "SKU-1")
	if p.Stock != 0 {
		t.Fatalf("stock = %d, want 0", p.Stock)
	}
}

func TestRestock(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := context.Background()

	if err := e.Restock(ctx, "SKU-1", 3); err != nil {
		t.Fatalf("Restock: %v", err)
	}
	avail, _ := e.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3", avail)
	}
	if err := e.Restock(ctx, "SKU-1", 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
	if err := e.Restock(ctx, "NOPE", 1); !errors.Is(err, domain.ErrSKUNotFound) {
		t.Fatalf("err = %v, want ErrSKUNotFound", err)
	}
}

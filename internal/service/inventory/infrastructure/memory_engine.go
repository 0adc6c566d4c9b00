// internal/service/inventory/infrastructure/memory_engine.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"storefront/internal/service/inventory/domain"
)

// MemoryEngine 是 domain.Engine 的进程内实现，用于开发模式与测试。
// 每个 SKU 一个容量为 1 的 channel 充当互斥锁，语义上等价于
// 数据库实现里的商品行锁：读可用量和写预占在同一临界区内完成。
type MemoryEngine struct {
	mu           sync.Mutex
	products     map[string]*domain.Product
	reservations map[int64]*domain.Reservation
	nextID       int64

	skuLocks    map[string]chan struct{}
	lockTimeout time.Duration
}

var _ domain.Engine = (*MemoryEngine)(nil)

func NewMemoryEngine(lockTimeout time.Duration) *MemoryEngine {
	return &MemoryEngine{
		products:     make(map[string]*domain.Product),
		reservations: make(map[int64]*domain.Reservation),
		skuLocks:     make(map[string]chan struct{}),
		lockTimeout:  lockTimeout,
	}
}

// lockSKU 获取 SKU 级互斥锁，超时返回 ErrLockTimeout。
func (e *MemoryEngine) lockSKU(ctx context.Context, sku string) (func(), error) {
	e.mu.Lock()
	ch, ok := e.skuLocks[sku]
	if !ok {
		ch = make(chan struct{}, 1)
		e.skuLocks[sku] = ch
	}
	e.mu.Unlock()

	timer := time.NewTimer(e.lockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, domain.ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// activeReservedSum 统计某 SKU 当前活跃预占的数量总和，excludeID 可为 0。
// 调用方必须持有 e.mu。
func (e *MemoryEngine) activeReservedSum(sku string, now time.Time, excludeID int64) int {
	sum := 0
	for id, r := range e.reservations {
		if id == excludeID {
			continue
		}
		if r.SKU == sku && r.IsActive(now) {
			sum += r.Quantity
		}
	}
	return sum
}

func (e *MemoryEngine) AvailableQuantity(ctx context.Context, sku string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.products[sku]
	if !ok || !p.Active {
		return 0, domain.ErrSKUNotFound
	}
	avail := p.Stock - e.activeReservedSum(sku, time.Now(), 0)
	if avail < 0 {
		avail = 0
	}
	return avail, nil
}

func (e *MemoryEngine) Reserve(ctx context.Context, sku string, qty int, ttl time.Duration) (*domain.Reservation, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	unlock, err := e.lockSKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.products[sku]
	if !ok || !p.Active {
		return nil, domain.ErrSKUNotFound
	}
	now := time.Now()
	if p.Stock-e.activeReservedSum(sku, now, 0) < qty {
		return nil, domain.ErrInsufficientStock
	}
	e.nextID++
	r := &domain.Reservation{
		ID:            e.nextID,
		SKU:           sku,
		Quantity:      qty,
		ReservedAt:    now,
		ReservedUntil: now.Add(ttl),
		Status:        domain.StatusReserved,
	}
	e.reservations[r.ID] = r
	return copyReservation(r), nil
}

func (e *MemoryEngine) Commit(ctx context.Context, reservationID, orderID int64) (*domain.Reservation, error) {
	e.mu.Lock()
	r, ok := e.reservations[reservationID]
	e.mu.Unlock()
	if !ok {
		return nil, domain.ErrReservationNotFound
	}

	unlock, err := e.lockSKU(ctx, r.SKU)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if r.Status != domain.StatusReserved {
		return nil, domain.ErrReservationNotActive
	}
	p, ok := e.products[r.SKU]
	if !ok {
		return nil, domain.ErrSKUNotFound
	}
	// 复核：排除自身后，剩余库存必须还装得下这单。
	// 防御 reserve 和 commit 之间 TTL 过期、库存被别人占走的竞态。
	now := time.Now()
	if p.Stock-e.activeReservedSum(r.SKU, now, r.ID) < r.Quantity {
		return nil, domain.ErrInventoryRace
	}
	if err := r.MarkCommitted(orderID); err != nil {
		return nil, err
	}
	p.Stock -= r.Quantity
	return copyReservation(r), nil
}

func (e *MemoryEngine) Release(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	r.MarkReleased()
	return copyReservation(r), nil
}

func (e *MemoryEngine) ExpireOverdue(ctx context.Context) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	var ids []int64
	for _, r := range e.reservations {
		if r.Status == domain.StatusReserved && !r.ReservedUntil.After(now) {
			if err := r.MarkExpired(); err == nil {
				ids = append(ids, r.ID)
			}
		}
	}
	return ids, nil
}

func (e *MemoryEngine) Restock(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	unlock, err := e.lockSKU(ctx, sku)
	if err != nil {
		return err
	}
	defer unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.products[sku]
	if !ok {
		return domain.ErrSKUNotFound
	}
	p.Stock += qty
	return nil
}

func (e *MemoryEngine) ProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.products[sku]
	if !ok || !p.Active {
		return nil, domain.ErrSKUNotFound
	}
	cp := *p
	return &cp, nil
}

func (e *MemoryEngine) AddProduct(ctx context.Context, p *domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *p
	if cp.ID == 0 {
		e.nextID++
		cp.ID = e.nextID
	}
	e.products[cp.SKU] = &cp
	return nil
}

func copyReservation(r *domain.Reservation) *domain.Reservation {
	cp := *r
	return &cp
}

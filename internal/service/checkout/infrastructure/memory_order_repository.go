// internal/service/checkout/infrastructure/memory_order_repository.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"storefront/internal/service/checkout/domain"
)

// MemoryOrderRepository 是订单仓储的进程内实现，开发模式与测试共用。
type MemoryOrderRepository struct {
	mu         sync.Mutex
	orders     map[int64]*domain.Order
	nextID     int64
	nextInvoID int64
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[int64]*domain.Order)}
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	for i := range order.Lines {
		order.Lines[i].ID = int64(i + 1)
		order.Lines[i].OrderID = order.ID
	}
	r.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (r *MemoryOrderRepository) UpdateState(ctx context.Context, id int64, state domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.State = state
	o.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryOrderRepository) SaveInvoice(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[invoice.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	r.nextInvoID++
	invoice.ID = r.nextInvoID
	cp := *invoice
	o.Invoice = &cp
	return nil
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if o.Invoice != nil {
		inv := *o.Invoice
		cp.Invoice = &inv
	}
	return &cp
}

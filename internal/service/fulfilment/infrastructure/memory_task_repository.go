// internal/service/fulfilment/infrastructure/memory_task_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"storefront/internal/service/fulfilment/domain"
)

// MemoryTaskRepository 是拣货任务仓储的进程内实现。
type MemoryTaskRepository struct {
	mu        sync.Mutex
	tasks     map[int64]*domain.PackingTask
	shipments map[int64]*domain.Shipment
	nextID    int64
	nextShip  int64
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks:     make(map[int64]*domain.PackingTask),
		shipments: make(map[int64]*domain.Shipment),
	}
}

func (r *MemoryTaskRepository) Save(ctx context.Context, task *domain.PackingTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	task.ID = r.nextID
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *MemoryTaskRepository) FindByID(ctx context.Context, id int64) (*domain.PackingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTaskRepository) FindByOrderID(ctx context.Context, orderID int64) (*domain.PackingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.OrderID == orderID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (r *MemoryTaskRepository) Update(ctx context.Context, task *domain.PackingTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return domain.ErrTaskNotFound
	}
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *MemoryTaskRepository) ListPending(ctx context.Context, limit int) ([]*domain.PackingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PackingTask
	for _, t := range r.tasks {
		if t.Status == domain.TaskPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTaskRepository) SaveShipment(ctx context.Context, shipment *domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextShip++
	shipment.ID = r.nextShip
	cp := *shipment
	r.shipments[shipment.ID] = &cp
	return nil
}

// internal/service/returns/infrastructure/memory_return_repository.go
package infrastructure

import (
	"context"
	"sync"

	"storefront/internal/service/returns/domain"
)

// MemoryReturnRepository 是退货单仓储的进程内实现。
type MemoryReturnRepository struct {
	mu       sync.Mutex
	returns  map[int64]*domain.ReturnRequest
	nextID   int64
	nextNote int64
}

func NewMemoryReturnRepository() *MemoryReturnRepository {
	return &MemoryReturnRepository{returns: make(map[int64]*domain.ReturnRequest)}
}

func (r *MemoryReturnRepository) Save(ctx context.Context, ret *domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ret.ID = r.nextID
	for i := range ret.Lines {
		ret.Lines[i].ID = int64(i + 1)
		ret.Lines[i].ReturnID = ret.ID
	}
	r.returns[ret.ID] = copyReturn(ret)
	return nil
}

func (r *MemoryReturnRepository) FindByID(ctx context.Context, id int64) (*domain.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[id]
	if !ok {
		return nil, domain.ErrReturnNotFound
	}
	return copyReturn(ret), nil
}

func (r *MemoryReturnRepository) FindByRMA(ctx context.Context, rmaNumber string) (*domain.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ret := range r.returns {
		if ret.RMANumber == rmaNumber {
			return copyReturn(ret), nil
		}
	}
	return nil, domain.ErrReturnNotFound
}

func (r *MemoryReturnRepository) ReturnedQtyByOrder(ctx context.Context, orderID int64, statuses ...domain.ReturnStatus) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, ret := range r.returns {
		if ret.OrderID != orderID {
			continue
		}
		if len(statuses) > 0 {
			matched := false
			for _, s := range statuses {
				if ret.Status == s {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		} else if ret.Status == domain.ReturnRejected {
			continue
		}
		for _, l := range ret.Lines {
			out[l.SKU] += l.Qty
		}
	}
	return out, nil
}

func (r *MemoryReturnRepository) Update(ctx context.Context, ret *domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.returns[ret.ID]; !ok {
		return domain.ErrReturnNotFound
	}
	r.returns[ret.ID] = copyReturn(ret)
	return nil
}

func (r *MemoryReturnRepository) SaveCreditNote(ctx context.Context, note *domain.CreditNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[note.ReturnID]
	if !ok {
		return domain.ErrReturnNotFound
	}
	r.nextNote++
	note.ID = r.nextNote
	cp := *note
	ret.CreditNote = &cp
	return nil
}

func copyReturn(ret *domain.ReturnRequest) *domain.ReturnRequest {
	cp := *ret
	cp.Lines = append([]domain.ReturnLine(nil), ret.Lines...)
	if ret.CreditNote != nil {
		note := *ret.CreditNote
		cp.CreditNote = &note
	}
	return &cp
}

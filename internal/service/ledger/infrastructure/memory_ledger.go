// internal/service/ledger/infrastructure/memory_ledger.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"storefront/internal/service/ledger/domain"
)

// MemoryLedger 是 domain.Ledger 的进程内实现，用于开发模式与测试。
// 单进程内 map+mutex 即可提供和数据库唯一键等价的「恰好一个赢家」语义。
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]*domain.Record
}

var _ domain.Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*domain.Record)}
}

func (l *MemoryLedger) Begin(ctx context.Context, key, operation string) (*domain.Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[key]; ok {
		// FAILED 允许被重新认领；持锁之下这个翻转是原子的。
		if rec.Status == domain.StatusFailed {
			rec.Status = domain.StatusInProgress
			rec.Operation = operation
			rec.UpdatedAt = time.Now()
			return copyRecord(rec), true, nil
		}
		return copyRecord(rec), false, nil
	}
	now := time.Now()
	rec := &domain.Record{
		Key:       key,
		Operation: operation,
		Status:    domain.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.records[key] = rec
	return copyRecord(rec), true, nil
}

func (l *MemoryLedger) Get(ctx context.Context, key string) (*domain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (l *MemoryLedger) Store(ctx context.Context, key, operation string, partial map[string]interface{}, merge bool) (*domain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		now := time.Now()
		rec = &domain.Record{
			Key:          key,
			Operation:    operation,
			Status:       domain.StatusInProgress,
			ResponseBody: cloneBody(partial),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		l.records[key] = rec
		return copyRecord(rec), nil
	}
	if merge && rec.ResponseBody != nil {
		for k, v := range partial {
			rec.ResponseBody[k] = v
		}
	} else {
		rec.ResponseBody = cloneBody(partial)
	}
	// 状态保持不变：Store 只承载中间结果
	rec.UpdatedAt = time.Now()
	return copyRecord(rec), nil
}

func (l *MemoryLedger) MarkCompleted(ctx context.Context, key string, response map[string]interface{}) (*domain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	rec.Status = domain.StatusCompleted
	rec.ResponseBody = cloneBody(response)
	rec.UpdatedAt = time.Now()
	return copyRecord(rec), nil
}

func (l *MemoryLedger) MarkFailed(ctx context.Context, key, errorMessage string) (*domain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		now := time.Now()
		rec = &domain.Record{
			Key:       key,
			Operation: "unknown",
			Status:    domain.StatusFailed,
			LastError: errorMessage,
			CreatedAt: now,
			UpdatedAt: now,
		}
		l.records[key] = rec
		return copyRecord(rec), nil
	}
	rec.Status = domain.StatusFailed
	rec.LastError = errorMessage
	rec.UpdatedAt = time.Now()
	return copyRecord(rec), nil
}

func copyRecord(rec *domain.Record) *domain.Record {
	cp := *rec
	cp.ResponseBody = cloneBody(rec.ResponseBody)
	return &cp
}

func cloneBody(body map[string]interface{}) map[string]interface{} {
	if body == nil {
		return nil
	}
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}

// internal/service/inventory/infrastructure/adapter/local_locker.go
package adapter

import (
	"context"
	"sync"
	"time"

	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/domain/port"
)

// LocalLocker 是 port.Locker 的进程内实现，适用于单实例部署和测试。
// 每个资源一个容量为 1 的 channel 作为互斥量，以支持有界等待。
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

var _ port.Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, resource string, timeout time.Duration) (port.Unlocker, error) {
	l.mu.Lock()
	ch, ok := l.locks[resource]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[resource] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
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

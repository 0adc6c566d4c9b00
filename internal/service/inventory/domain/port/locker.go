// internal/service/inventory/domain/port/locker.go
package port

import (
	"context"
	"time"
)

// Unlocker 释放一次成功获取的锁。
type Unlocker func()

// Locker 是 SKU 级互斥的抽象。数据库行锁之外再套一层分布式锁，
// 目的是给「等锁」一个可配置的有界超时：拿不到锁返回
// domain.ErrLockTimeout，调用方按可重试错误处理，而不是无限阻塞。
// 后端可选：进程内互斥、Redis、ZooKeeper，由配置决定。
type Locker interface {
	Acquire(ctx context.Context, resource string, timeout time.Duration) (Unlocker, error)
}

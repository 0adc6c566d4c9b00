// internal/service/inventory/domain/engine.go
package domain

import (
	"context"
	"time"
)

// Engine 是库存预占引擎的出站端口，由基础设施层实现。
//
// 不变式：任意时刻、任意 SKU，
//
//	stock - Σ(活跃 RESERVED 预占数量) >= 0
//
// reserve/commit 中「读可用量 + 写新状态」必须在同一个 SKU 级临界区内完成。
type Engine interface {
	// AvailableQuantity 返回可售数量 = stock - Σ(活跃预占)。永不为负。
	AvailableQuantity(ctx context.Context, sku string) (int, error)

	// Reserve 创建一条 TTL 限时预占；可用量不足时返回 ErrInsufficientStock，
	// 等锁超时返回 ErrLockTimeout。
	Reserve(ctx context.Context, sku string, qty int, ttl time.Duration) (*Reservation, error)

	// Commit 消费一条预占：复核可用量（排除自身）、扣减权威库存、
	// 记录 orderID。状态不是 RESERVED 时返回 ErrReservationNotActive，
	// 复核失败返回 ErrInventoryRace。
	Commit(ctx context.Context, reservationID, orderID int64) (*Reservation, error)

	// Release 释放一条预占。对已处于终态的预占幂等返回。
	Release(ctx context.Context, reservationID int64) (*Reservation, error)

	// ExpireOverdue 扫描过期且仍为 RESERVED 的预占并标记为 EXPIRED，
	// 返回受影响的 id。可以和 Commit 并发调用：Commit 会在锁内复核状态。
	ExpireOverdue(ctx context.Context) ([]int64, error)

	// Restock 增加权威库存（退货上架）。所有库存加减都收口在引擎内。
	Restock(ctx context.Context, sku string, qty int) error

	// ProductBySKU 供编排方做校验和取价格快照。
	ProductBySKU(ctx context.Context, sku string) (*Product, error)

	// AddProduct 登记商品（种子数据与测试用）。
	AddProduct(ctx context.Context, p *Product) error
}

// internal/service/inventory/domain/errors.go
package domain

import "errors"

var (
	ErrSKUNotFound          = errors.New("sku not found")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInsufficientStock    = errors.New("not enough stock")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationNotActive = errors.New("reservation not active")
	// ErrInventoryRace 表示 commit 时的复核失败：预占在 reserve 和 commit
	// 之间失效（通常是 TTL 过期后库存又被别人占走）。
	ErrInventoryRace = errors.New("not enough stock to commit reservation")
	// ErrLockTimeout 表示在限定时间内没有拿到 SKU 级别的互斥锁，可重试。
	ErrLockTimeout = errors.New("timed out waiting for sku lock")
)

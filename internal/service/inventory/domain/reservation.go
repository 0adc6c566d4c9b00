// internal/service/inventory/domain/reservation.go
package domain

import "time"

// Status 定义了库存预占的生命周期状态。
// 离开 RESERVED 之后的流转是单向的，终态之间互不可达。
type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusCommitted Status = "COMMITTED"
	StatusReleased  Status = "RELEASED"
	StatusExpired   Status = "EXPIRED"
)

// Reservation 是对某个 SKU 库存的一次限时占用。
type Reservation struct {
	ID            int64
	SKU           string
	Quantity      int
	ReservedAt    time.Time
	ReservedUntil time.Time
	Status        Status
	// OrderID 仅在 Commit 时写入。
	OrderID int64
}

// IsActive 判断预占此刻是否仍占用可售库存。
func (r *Reservation) IsActive(now time.Time) bool {
	return r.Status == StatusReserved && r.ReservedUntil.After(now)
}

// MarkCommitted 把预占流转为已消费。只有 RESERVED 状态允许。
func (r *Reservation) MarkCommitted(orderID int64) error {
	if r.Status != StatusReserved {
		return ErrReservationNotActive
	}
	r.Status = StatusCommitted
	r.OrderID = orderID
	return nil
}

// MarkReleased 释放预占。对终态调用是幂等的空操作。
func (r *Reservation) MarkReleased() {
	if r.Status != StatusReserved {
		return
	}
	r.Status = StatusReleased
}

// MarkExpired 把超期的预占标记为已过期。
func (r *Reservation) MarkExpired() error {
	if r.Status != StatusReserved {
		return ErrReservationNotActive
	}
	r.Status = StatusExpired
	return nil
}

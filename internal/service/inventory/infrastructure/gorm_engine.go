// internal/service/inventory/infrastructure/gorm_engine.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/domain/port"
)

// GormEngine 是 domain.Engine 的持久化实现。
// 临界区由两层构成：外层是可配置后端的 SKU 级分布式锁（提供有界等待），
// 内层是事务内的商品行锁（FOR UPDATE，提供真正的串行化保证）。
type GormEngine struct {
	db          *gorm.DB
	locker      port.Locker
	lockTimeout time.Duration
}

var _ domain.Engine = (*GormEngine)(nil)

func NewGormEngine(db *gorm.DB, locker port.Locker, lockTimeout time.Duration) *GormEngine {
	return &GormEngine{db: db, locker: locker, lockTimeout: lockTimeout}
}

// Migrate 建表。各组装根在启动时调用一次。
func (e *GormEngine) Migrate() error {
	if err := e.db.AutoMigrate(&ProductModel{}, &ReservationModel{}); err != nil {
		return errors.Wrap(err, "migrate inventory tables")
	}
	return nil
}

func skuLockResource(sku string) string {
	return "inventory:sku:" + sku
}

// activeReservedSum 统计活跃预占数量之和，excludeID 为 0 表示不排除。
func activeReservedSum(tx *gorm.DB, sku string, now time.Time, excludeID int64) (int, error) {
	var sum int64
	q := tx.Model(&ReservationModel{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("sku = ? AND status = ? AND reserved_until > ?", sku, string(domain.StatusReserved), now)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Scan(&sum).Error; err != nil {
		return 0, errors.Wrap(err, "sum active reservations")
	}
	return int(sum), nil
}

func (e *GormEngine) AvailableQuantity(ctx context.Context, sku string) (int, error) {
	var m ProductModel
	err := e.db.WithContext(ctx).Where("sku = ? AND active = ?", sku, true).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrSKUNotFound
		}
		return 0, errors.Wrap(err, "load product")
	}
	sum, err := activeReservedSum(e.db.WithContext(ctx), sku, time.Now(), 0)
	if err != nil {
		return 0, err
	}
	avail := m.Stock - sum
	if avail < 0 {
		avail = 0
	}
	return avail, nil
}

func (e *GormEngine) Reserve(ctx context.Context, sku string, qty int, ttl time.Duration) (*domain.Reservation, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	unlock, err := e.locker.Acquire(ctx, skuLockResource(sku), e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *domain.Reservation
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m ProductModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sku = ? AND active = ?", sku, true).
			First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrSKUNotFound
			}
			return errors.Wrap(err, "lock product row")
		}

		now := time.Now()
		sum, err := activeReservedSum(tx, sku, now, 0)
		if err != nil {
			return err
		}
		if m.Stock-sum < qty {
			return domain.ErrInsufficientStock
		}

		row := &ReservationModel{
			SKU:           sku,
			Quantity:      qty,
			ReservedAt:    now,
			ReservedUntil: now.Add(ttl),
			Status:        string(domain.StatusReserved),
		}
		if err := tx.Create(row).Error; err != nil {
			return errors.Wrap(err, "insert reservation")
		}
		out = toDomainReservation(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *GormEngine) Commit(ctx context.Context, reservationID, orderID int64) (*domain.Reservation, error) {
	// 先读一次拿到 SKU，再在 SKU 锁内做事务性复核。
	var peek ReservationModel
	if err := e.db.WithContext(ctx).First(&peek, reservationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, errors.Wrap(err, "load reservation")
	}

	unlock, err := e.locker.Acquire(ctx, skuLockResource(peek.SKU), e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *domain.Reservation
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ReservationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, reservationID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReservationNotFound
			}
			return errors.Wrap(err, "lock reservation row")
		}
		if domain.Status(row.Status) != domain.StatusReserved {
			return domain.ErrReservationNotActive
		}

		var prod ProductModel
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sku = ?", row.SKU).
			First(&prod).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrSKUNotFound
			}
			return errors.Wrap(err, "lock product row")
		}

		// 复核可用量，排除本预占自身。防御 TTL 在 reserve 和 commit
		// 之间过期、库存又被别人占走的竞态。
		now := time.Now()
		sum, err := activeReservedSum(tx, row.SKU, now, row.ID)
		if err != nil {
			return err
		}
		if prod.Stock-sum < row.Quantity {
			return domain.ErrInventoryRace
		}

		if err := tx.Model(&prod).Update("stock", gorm.Expr("stock - ?", row.Quantity)).Error; err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		updates := map[string]interface{}{
			"status":   string(domain.StatusCommitted),
			"order_id": orderID,
		}
		if err := tx.Model(&row).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "mark reservation committed")
		}
		row.Status = string(domain.StatusCommitted)
		row.OrderID = orderID
		out = toDomainReservation(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *GormEngine) Release(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	var out *domain.Reservation
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ReservationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, reservationID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReservationNotFound
			}
			return errors.Wrap(err, "lock reservation row")
		}
		// 终态直接原样返回，Release 是幂等的。
		if domain.Status(row.Status) == domain.StatusReserved {
			if err := tx.Model(&row).Update("status", string(domain.StatusReleased)).Error; err != nil {
				return errors.Wrap(err, "mark reservation released")
			}
			row.Status = string(domain.StatusReleased)
		}
		out = toDomainReservation(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *GormEngine) ExpireOverdue(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []ReservationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND reserved_until <= ?", string(domain.StatusReserved), time.Now()).
			Find(&rows).Error
		if err != nil {
			return errors.Wrap(err, "scan overdue reservations")
		}
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		if len(ids) == 0 {
			return nil
		}
		err = tx.Model(&ReservationModel{}).
			Where("id IN ? AND status = ?", ids, string(domain.StatusReserved)).
			Update("status", string(domain.StatusExpired)).Error
		return errors.Wrap(err, "mark reservations expired")
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (e *GormEngine) Restock(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	unlock, err := e.locker.Acquire(ctx, skuLockResource(sku), e.lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ProductModel{}).
			Where("sku = ?", sku).
			Update("stock", gorm.Expr("stock + ?", qty))
		if res.Error != nil {
			return errors.Wrap(res.Error, "increment stock")
		}
		if res.RowsAffected == 0 {
			return domain.ErrSKUNotFound
		}
		return nil
	})
}

func (e *GormEngine) ProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var m ProductModel
	err := e.db.WithContext(ctx).Where("sku = ? AND active = ?", sku, true).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSKUNotFound
		}
		return nil, errors.Wrap(err, "load product")
	}
	return toDomainProduct(&m), nil
}

func (e *GormEngine) AddProduct(ctx context.Context, p *domain.Product) error {
	row := &ProductModel{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Active:      p.Active,
		Stock:       p.Stock,
	}
	if err := e.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert product")
	}
	p.ID = row.ID
	return nil
}

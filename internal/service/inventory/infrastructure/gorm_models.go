// internal/service/inventory/infrastructure/gorm_models.go
package infrastructure

import (
	"time"

	"storefront/internal/service/inventory/domain"
)

// ProductModel 对应数据库中的 products 表。
type ProductModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	SKU         string `gorm:"column:sku;size:64;uniqueIndex;not null"`
	Name        string `gorm:"size:256;not null"`
	Description string `gorm:"type:text"`
	PriceCents  int64  `gorm:"not null;default:0"`
	Active      bool   `gorm:"not null;default:true"`
	Stock       int    `gorm:"not null;default:0"`
}

func (ProductModel) TableName() string {
	return "products"
}

// ReservationModel 对应数据库中的 inventory_reservations 表。
type ReservationModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	SKU           string    `gorm:"column:sku;size:64;index;not null"`
	Quantity      int       `gorm:"not null"`
	ReservedAt    time.Time `gorm:"not null"`
	ReservedUntil time.Time `gorm:"index;not null"`
	Status        string    `gorm:"size:32;index;not null;default:RESERVED"`
	OrderID       int64     `gorm:"index"`
}

func (ReservationModel) TableName() string {
	return "inventory_reservations"
}

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:          m.ID,
		SKU:         m.SKU,
		Name:        m.Name,
		Description: m.Description,
		PriceCents:  m.PriceCents,
		Active:      m.Active,
		Stock:       m.Stock,
	}
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	return &domain.Reservation{
		ID:            m.ID,
		SKU:           m.SKU,
		Quantity:      m.Quantity,
		ReservedAt:    m.ReservedAt,
		ReservedUntil: m.ReservedUntil,
		Status:        domain.Status(m.Status),
		OrderID:       m.OrderID,
	}
}

// internal/service/checkout/infrastructure/gorm_models.go
package infrastructure

import (
	"time"

	"storefront/internal/service/checkout/domain"
)

// OrderModel 对应 orders 表。
type OrderModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	OrderNumber string `gorm:"size:32;uniqueIndex"`
	CustomerID  *int64 `gorm:"index"`
	State       string `gorm:"size:16;index"`
	TotalCents  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Lines   []OrderLineModel `gorm:"foreignKey:OrderID"`
	Invoice *InvoiceModel    `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderLineModel 对应 order_lines 表。单价是下单时刻的快照。
type OrderLineModel struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	OrderID    int64 `gorm:"index"`
	SKU        string `gorm:"size:64;index"`
	Name       string `gorm:"size:255"`
	Qty        int
	PriceCents int64
}

func (OrderLineModel) TableName() string { return "order_lines" }

// InvoiceModel 对应 invoices 表。
type InvoiceModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	OrderID       int64  `gorm:"uniqueIndex"`
	InvoiceNo     string `gorm:"size:32;uniqueIndex"`
	TotalCents    int64
	TaxCents      int64
	TransactionID string `gorm:"size:64"`
	CreatedAt     time.Time
}

func (InvoiceModel) TableName() string { return "invoices" }

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:          m.ID,
		OrderNumber: m.OrderNumber,
		CustomerID:  m.CustomerID,
		State:       domain.State(m.State),
		TotalCents:  m.TotalCents,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	for _, l := range m.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{
			ID:         l.ID,
			OrderID:    l.OrderID,
			SKU:        l.SKU,
			Name:       l.Name,
			Qty:        l.Qty,
			PriceCents: l.PriceCents,
		})
	}
	if m.Invoice != nil {
		o.Invoice = toDomainInvoice(m.Invoice)
	}
	return o
}

func toDomainInvoice(m *InvoiceModel) *domain.Invoice {
	return &domain.Invoice{
		ID:            m.ID,
		OrderID:       m.OrderID,
		InvoiceNo:     m.InvoiceNo,
		TotalCents:    m.TotalCents,
		TaxCents:      m.TaxCents,
		TransactionID: m.TransactionID,
		CreatedAt:     m.CreatedAt,
	}
}

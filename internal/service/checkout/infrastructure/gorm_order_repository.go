// internal/service/checkout/infrastructure/gorm_order_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/checkout/domain"
)

// GormOrderRepository 是订单聚合基于 GORM 的持久化实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	if err := db.AutoMigrate(&OrderModel{}, &OrderLineModel{}, &InvoiceModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate order tables")
	}
	return &GormOrderRepository{db: db}, nil
}

func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	row := &OrderModel{
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		State:       string(order.State),
		TotalCents:  order.TotalCents,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, l := range order.Lines {
		row.Lines = append(row.Lines, OrderLineModel{
			SKU:        l.SKU,
			Name:       l.Name,
			Qty:        l.Qty,
			PriceCents: l.PriceCents,
		})
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert order")
	}
	order.ID = row.ID
	for i := range row.Lines {
		order.Lines[i].ID = row.Lines[i].ID
		order.Lines[i].OrderID = row.ID
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	var row OrderModel
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Invoice").
		First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "query order")
	}
	return toDomainOrder(&row), nil
}

func (r *GormOrderRepository) UpdateState(ctx context.Context, id int64, state domain.State) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", id).
		Update("state", string(state))
	if res.Error != nil {
		return errors.Wrap(res.Error, "update order state")
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *GormOrderRepository) SaveInvoice(ctx context.Context, invoice *domain.Invoice) error {
	row := &InvoiceModel{
		OrderID:       invoice.OrderID,
		InvoiceNo:     invoice.InvoiceNo,
		TotalCents:    invoice.TotalCents,
		TaxCents:      invoice.TaxCents,
		TransactionID: invoice.TransactionID,
		CreatedAt:     invoice.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert invoice")
	}
	invoice.ID = row.ID
	return nil
}

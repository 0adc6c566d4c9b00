// internal/service/checkout/domain/repository.go
package domain

import "context"

// OrderRepository 定义订单聚合的持久化端口。
type OrderRepository interface {
	// Save 持久化订单头和订单行，回填生成的 ID。
	Save(ctx context.Context, order *Order) error
	// FindByID 加载订单聚合（含订单行与发票）。
	FindByID(ctx context.Context, id int64) (*Order, error)
	// UpdateState 持久化状态流转。
	UpdateState(ctx context.Context, id int64, state State) error
	// SaveInvoice 持久化发票并挂到订单上。
	SaveInvoice(ctx context.Context, invoice *Invoice) error
}

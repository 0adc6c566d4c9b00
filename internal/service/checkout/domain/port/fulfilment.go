// internal/service/checkout/domain/port/fulfilment.go
package port

import "context"

// FulfilmentService 是结算 saga 对履约上下文的出站端口。
// 失败不致命：支付已落账的订单不会因为履约暂时不可用而回滚。
type FulfilmentService interface {
	CreatePackingTaskForOrder(ctx context.Context, orderID int64, orderNumber string) error
}

// internal/service/returns/domain/repository.go
package domain

import "context"

// ReturnRepository 定义退货单聚合的持久化端口。
type ReturnRepository interface {
	Save(ctx context.Context, ret *ReturnRequest) error
	FindByID(ctx context.Context, id int64) (*ReturnRequest, error)
	FindByRMA(ctx context.Context, rmaNumber string) (*ReturnRequest, error)
	// ReturnedQtyByOrder 统计某订单每个 SKU 在指定状态退货单里的数量。
	// statuses 为空时统计所有未被拒绝的退货单（超退校验用），
	// 传入具体状态时只统计这些状态（判断整单是否退完用）。
	ReturnedQtyByOrder(ctx context.Context, orderID int64, statuses ...ReturnStatus) (map[string]int, error)
	Update(ctx context.Context, ret *ReturnRequest) error
	SaveCreditNote(ctx context.Context, note *CreditNote) error
}

// internal/service/checkout/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrValidation 表示请求本身不合法（空订单、未知 SKU、数量非正等）。
	ErrValidation = errors.New("checkout: validation failed")

	// ErrEmptyOrder 订单至少要有一行。
	ErrEmptyOrder = errors.Wrap(ErrValidation, "order must contain at least one line")

	// ErrOrderNotFound 按 ID 查询不到订单。
	ErrOrderNotFound = errors.New("checkout: order not found")

	// ErrOrderAlreadyTerminal 终态只允许写一次。
	ErrOrderAlreadyTerminal = errors.New("checkout: order already in terminal state")

	// ErrOrderNotCompleted 只有已完成的订单才能退款。
	ErrOrderNotCompleted = errors.New("checkout: order is not completed")

	// ErrInventoryRace 提交预占时发现库存状态已被并发操作改变。
	ErrInventoryRace = errors.New("checkout: inventory state changed concurrently")
)

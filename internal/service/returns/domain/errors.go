// internal/service/returns/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrReturnValidation 退货请求不合法。
	ErrReturnValidation = errors.New("returns: validation failed")

	// ErrOverReturn 退货数量超过当初购买数量（含既往已退）。
	ErrOverReturn = errors.Wrap(ErrReturnValidation, "return quantity exceeds purchased quantity")

	// ErrNotEligible 退货策略（CEL 规则）拒绝了该行。
	ErrNotEligible = errors.Wrap(ErrReturnValidation, "return line not eligible per policy")

	// ErrReturnNotFound 按 ID/RMA 查询不到退货单。
	ErrReturnNotFound = errors.New("returns: return request not found")

	// ErrReturnNotReceivable 退货单当前状态不允许该流转。
	ErrReturnNotReceivable = errors.New("returns: return request is not in a receivable state")
)

// internal/service/checkout/domain/port/payment.go
package port

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrPaymentDeclined 支付被明确拒绝，重试没有意义。
	ErrPaymentDeclined = errors.New("payment: declined")
	// ErrPaymentTransient 支付网关瞬时故障，可以有界重试。
	ErrPaymentTransient = errors.New("payment: transient gateway failure")
	// ErrRefundFailed 退款失败。
	ErrRefundFailed = errors.New("payment: refund failed")
)

// PaymentMethod 是调用方提交的支付方式。ForceDecline 供联调与测试使用，
// 网关看到它就直接拒绝。
type PaymentMethod struct {
	Type         string `json:"type"`
	Token        string `json:"token"`
	ForceDecline bool   `json:"force_decline,omitempty"`
}

// ChargeResult 是一次成功扣款的凭证。
type ChargeResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount_cents"`
}

// RefundResult 是一次成功退款的凭证。
type RefundResult struct {
	RefundID      string `json:"refund_id"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// PaymentService 抽象支付网关。Charge 带幂等键：同一个键重复扣款
// 必须返回同一个 ChargeResult 而不是再扣一次。
type PaymentService interface {
	Charge(ctx context.Context, amountCents int64, method PaymentMethod, idemKey string) (*ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amountCents int64) (*RefundResult, error)
}

// internal/service/checkout/infrastructure/adapter/payment_mock_adapter.go
package adapter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"storefront/internal/service/checkout/domain/port"
)

// MockPaymentAdapter 是开发模式下的支付网关。
// 按幂等键记账：同一个键重复扣款返回第一次的凭证，不会重复扣。
// method.ForceDecline 可以在联调里制造拒绝路径。
type MockPaymentAdapter struct {
	delay time.Duration

	mu      sync.Mutex
	charges map[string]*port.ChargeResult

	// FailTransientTimes 大于 0 时，接下来的 N 次 Charge 返回瞬时错误，
	// 用来驱动重试路径。
	FailTransientTimes int
}

func NewMockPaymentAdapter(delay time.Duration) *MockPaymentAdapter {
	return &MockPaymentAdapter{
		delay:   delay,
		charges: make(map[string]*port.ChargeResult),
	}
}

func (a *MockPaymentAdapter) Charge(ctx context.Context, amountCents int64, method port.PaymentMethod, idemKey string) (*port.ChargeResult, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.delay):
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if idemKey != "" {
		if prev, ok := a.charges[idemKey]; ok {
			log.Debug().Str("idem_key", idemKey).Msg("mock payment replaying previous charge")
			cp := *prev
			return &cp, nil
		}
	}
	if a.FailTransientTimes > 0 {
		a.FailTransientTimes--
		return nil, port.ErrPaymentTransient
	}
	if method.ForceDecline {
		return nil, port.ErrPaymentDeclined
	}

	result := &port.ChargeResult{
		TransactionID: newMockID("mock-txn"),
		Status:        "captured",
		AmountCents:   amountCents,
	}
	if idemKey != "" {
		a.charges[idemKey] = result
	}
	cp := *result
	return &cp, nil
}

func (a *MockPaymentAdapter) Refund(ctx context.Context, transactionID string, amountCents int64) (*port.RefundResult, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.delay):
		}
	}
	return &port.RefundResult{
		RefundID:      newMockID("mock-ref"),
		TransactionID: transactionID,
		AmountCents:   amountCents,
	}, nil
}

func newMockID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// internal/service/checkout/application/saga/handler.go
package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
	inventorydomain "storefront/internal/service/inventory/domain"
	ledgerdomain "storefront/internal/service/ledger/domain"

	"github.com/rs/zerolog/log"
)

// CheckoutContext 在结算 Saga 流程中传递上下文数据。
// 所有外部依赖都是抽象端口，步骤之间通过它共享状态。
type CheckoutContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	// 请求输入
	IdemKey       string
	CustomerID    *int64
	Items         []domain.ItemSpec
	PaymentMethod port.PaymentMethod

	// 出站端口
	Repo       domain.OrderRepository
	Inventory  inventorydomain.Engine
	Payment    port.PaymentService
	Fulfilment port.FulfilmentService
	Ledger     ledgerdomain.Ledger

	// 支付重试策略
	PaymentMaxRetries   int
	PaymentRetryBackoff time.Duration
	ReservationTTL      time.Duration

	// 步骤之间共享的流程状态
	Order        *domain.Order
	Reservations []*inventorydomain.Reservation
	Charge       *port.ChargeResult
	InvoiceID    int64

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 注册补偿动作，触发时按 LIFO 顺序执行。
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 逆序执行所有已注册的补偿动作。
// 补偿失败只记录日志，不中断后续补偿。
func (c *CheckoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	if len(c.compensations) == 0 {
		return
	}
	orderNo := ""
	if c.Order != nil {
		orderNo = c.Order.OrderNumber
	}
	log.Info().Str("order", orderNo).Int("count", len(c.compensations)).
		Msg("executing saga compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

// Handler 是责任链上的一个 Saga 步骤。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}

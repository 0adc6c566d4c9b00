// internal/service/checkout/application/saga/create_order.go
package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// CreateOrderHandler 负责持久化 IN_PROGRESS 订单。
// 订单在触碰库存前先落库，失败路径上它会被标记为 FAILED 而不是删除，
// 留下审计痕迹。
type CreateOrderHandler struct {
	NextHandler
}

func (h *CreateOrderHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	if err := checkoutCtx.Repo.Save(ctx, checkoutCtx.Order); err != nil {
		return fmt.Errorf("save in-progress order: %w", err)
	}
	span.SetAttributes(
		attribute.Int64("order_id", checkoutCtx.Order.ID),
		attribute.String("order_number", checkoutCtx.Order.OrderNumber),
	)
	span.AddEvent("In-progress order saved")

	return h.executeNext(checkoutCtx)
}

// internal/service/checkout/application/saga/fulfilment.go
package saga

import (
	"github.com/rs/zerolog/log"
)

// FulfilmentHandler 负责把已完成的订单交接给履约上下文。
// 交接失败只记录，不回滚订单：钱已落账、库存已扣，履约可以事后补建。
type FulfilmentHandler struct {
	NextHandler
}

func (h *FulfilmentHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.FulfilmentHandOff")
	defer span.End()

	if checkoutCtx.Fulfilment == nil {
		return h.executeNext(checkoutCtx)
	}
	if err := checkoutCtx.Fulfilment.CreatePackingTaskForOrder(ctx, checkoutCtx.Order.ID, checkoutCtx.Order.OrderNumber); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("order", checkoutCtx.Order.OrderNumber).
			Msg("fulfilment hand-off failed, order remains completed")
	}

	return h.executeNext(checkoutCtx)
}

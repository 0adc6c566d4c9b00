// internal/service/checkout/application/saga/reserve.go
package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rs/zerolog/log"
)

// ReserveHandler 负责为每个订单行预占库存。
// 任何一行预占失败都会让整个订单失败；补偿动作会释放本订单已经拿到的
// 全部预占，不管预占走到了第几行。
type ReserveHandler struct {
	NextHandler
}

func (h *ReserveHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.ReserveStock")
	defer span.End()

	// 补偿注册在第一次预占之前：部分预占后失败也能全部释放。
	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseReservations")
		defer compSpan.End()

		for _, r := range checkoutCtx.Reservations {
			if _, err := checkoutCtx.Inventory.Release(compCtx, r.ID); err != nil {
				// 释放失败需要人工介入，记录后继续释放其余预占。
				compSpan.RecordError(err)
				log.Error().Err(err).Int64("reservation_id", r.ID).
					Str("order", checkoutCtx.Order.OrderNumber).
					Msg("failed to release reservation during compensation")
			}
		}
	})

	for _, line := range checkoutCtx.Order.Lines {
		reservation, err := checkoutCtx.Inventory.Reserve(ctx, line.SKU, line.Qty, checkoutCtx.ReservationTTL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stock reservation failed")
			return err
		}
		checkoutCtx.Reservations = append(checkoutCtx.Reservations, reservation)
	}

	span.SetAttributes(attribute.Int("reservations", len(checkoutCtx.Reservations)))
	span.AddEvent("All lines reserved")

	return h.executeNext(checkoutCtx)
}

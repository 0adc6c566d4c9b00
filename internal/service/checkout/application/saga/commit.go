// internal/service/checkout/application/saga/commit.go
package saga

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/service/checkout/domain"
	inventorydomain "storefront/internal/service/inventory/domain"
)

// CommitHandler 负责把全部预占转为实际扣减。
// 每提交一行就登记一条回补库存的补偿：后面某行因为预占过期或并发
// 冲突提交不了时，已经扣掉的库存能补回来，已扣的款由支付补偿退掉。
type CommitHandler struct {
	NextHandler
}

func (h *CommitHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CommitReservations")
	defer span.End()

	for _, reservation := range checkoutCtx.Reservations {
		r := reservation
		if _, err := checkoutCtx.Inventory.Commit(ctx, r.ID, checkoutCtx.Order.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reservation commit failed")
			if errors.Is(err, inventorydomain.ErrReservationNotActive) ||
				errors.Is(err, inventorydomain.ErrInventoryRace) ||
				errors.Is(err, inventorydomain.ErrReservationNotFound) {
				return errors.Wrapf(domain.ErrInventoryRace, "commit reservation %d: %v", r.ID, err)
			}
			return err
		}
		// 这一行已经真正扣减，补偿从回补库存而不是释放预占走。
		checkoutCtx.AddCompensation(func(compCtx context.Context) {
			compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.RestockCommittedLine")
			defer compSpan.End()

			if err := checkoutCtx.Inventory.Restock(compCtx, r.SKU, r.Quantity); err != nil {
				compSpan.RecordError(err)
				log.Error().Err(err).Str("sku", r.SKU).Int("qty", r.Quantity).
					Str("order", checkoutCtx.Order.OrderNumber).
					Msg("failed to restock committed line during compensation")
			}
		})
	}

	span.AddEvent("All reservations committed")
	return h.executeNext(checkoutCtx)
}

// internal/service/checkout/application/saga/validate.go
package saga

import (
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/service/checkout/domain"
	inventorydomain "storefront/internal/service/inventory/domain"
)

// ValidateHandler 负责校验请求：行数、数量、SKU 存在且在售。
// 校验通过后把目录快照出来的订单行和总价写回上下文。
type ValidateHandler struct {
	NextHandler
}

func (h *ValidateHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.ValidateRequest")
	defer span.End()

	if len(checkoutCtx.Items) == 0 {
		span.SetStatus(codes.Error, "empty order")
		return domain.ErrEmptyOrder
	}

	seen := make(map[string]bool, len(checkoutCtx.Items))
	lines := make([]domain.OrderLine, 0, len(checkoutCtx.Items))
	var total int64
	for _, item := range checkoutCtx.Items {
		if item.Qty <= 0 {
			span.SetStatus(codes.Error, "non-positive quantity")
			return errors.Wrapf(domain.ErrValidation, "quantity for %s must be positive", item.SKU)
		}
		if seen[item.SKU] {
			span.SetStatus(codes.Error, "duplicate sku")
			return errors.Wrapf(domain.ErrValidation, "duplicate line for sku %s", item.SKU)
		}
		seen[item.SKU] = true

		product, err := checkoutCtx.Inventory.ProductBySKU(ctx, item.SKU)
		if err != nil {
			if errors.Is(err, inventorydomain.ErrSKUNotFound) {
				span.SetStatus(codes.Error, "unknown sku")
				return errors.Wrapf(domain.ErrValidation, "unknown sku %s", item.SKU)
			}
			return fmt.Errorf("lookup sku %s: %w", item.SKU, err)
		}
		if !product.Active {
			span.SetStatus(codes.Error, "inactive sku")
			return errors.Wrapf(domain.ErrValidation, "sku %s is not for sale", item.SKU)
		}

		lines = append(lines, domain.OrderLine{
			SKU:        product.SKU,
			Name:       product.Name,
			Qty:        item.Qty,
			PriceCents: product.PriceCents,
		})
		total += product.PriceCents * int64(item.Qty)
	}

	order, err := domain.NewOrder(checkoutCtx.CustomerID, lines, total)
	if err != nil {
		return err
	}
	checkoutCtx.Order = order

	span.SetAttributes(
		attribute.Int("lines", len(lines)),
		attribute.Int64("total_cents", total),
	)
	return h.executeNext(checkoutCtx)
}

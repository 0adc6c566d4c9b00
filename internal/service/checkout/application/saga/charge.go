// internal/service/checkout/application/saga/charge.go
package saga

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/metrics"
	"storefront/internal/service/checkout/domain/port"
)

// ChargeHandler 负责扣款。
// 瞬时网关故障做有界重试；扣款成功后立刻把支付凭证写进幂等台账的
// 部分响应里，这样即使进程在开票前崩溃，重试也能发现钱已经扣过。
type ChargeHandler struct {
	NextHandler
}

func (h *ChargeHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.ChargePayment")
	defer span.End()

	// 无键请求不做支付去重，把空键原样传给网关。
	var paymentKey string
	if checkoutCtx.IdemKey != "" {
		paymentKey = checkoutCtx.IdemKey + ":charge"
	}
	span.SetAttributes(attribute.Int64("amount_cents", checkoutCtx.Order.TotalCents))

	var result *port.ChargeResult
	var err error
	for attempt := 0; ; attempt++ {
		result, err = checkoutCtx.Payment.Charge(ctx, checkoutCtx.Order.TotalCents, checkoutCtx.PaymentMethod, paymentKey)
		if err == nil {
			break
		}
		if !errors.Is(err, port.ErrPaymentTransient) || attempt >= checkoutCtx.PaymentMaxRetries {
			span.RecordError(err)
			span.SetStatus(codes.Error, "payment failed")
			return err
		}
		metrics.PaymentRetriesTotal.Inc()
		log.Warn().Err(err).Int("attempt", attempt+1).
			Str("order", checkoutCtx.Order.OrderNumber).
			Msg("transient payment failure, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(checkoutCtx.PaymentRetryBackoff):
		}
	}
	checkoutCtx.Charge = result

	// 钱已经动了，先登记退款补偿，再把凭证写进台账的部分响应。
	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.RefundPayment")
		defer compSpan.End()

		if _, err := checkoutCtx.Payment.Refund(compCtx, result.TransactionID, result.AmountCents); err != nil {
			compSpan.RecordError(err)
			log.Error().Err(err).Str("transaction_id", result.TransactionID).
				Str("order", checkoutCtx.Order.OrderNumber).
				Msg("failed to refund payment during compensation")
			return
		}
		metrics.RefundsTotal.WithLabelValues("compensation").Inc()
	})

	if checkoutCtx.IdemKey != "" {
		if _, err := checkoutCtx.Ledger.Store(ctx, checkoutCtx.IdemKey, "checkout", map[string]interface{}{
			"payment_result": map[string]interface{}{
				"transaction_id": result.TransactionID,
				"status":         result.Status,
				"amount_cents":   result.AmountCents,
			},
		}, true); err != nil {
			// 台账写失败不回滚支付，后续完成时还会整体覆盖一次。
			span.RecordError(err)
			log.Error().Err(err).Str("key", checkoutCtx.IdemKey).
				Msg("failed to store partial payment result in ledger")
		}
	}

	span.AddEvent("Payment captured")
	return h.executeNext(checkoutCtx)
}

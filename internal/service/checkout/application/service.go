// internal/service/checkout/application/service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/config"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/checkout/application/saga"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
	inventorydomain "storefront/internal/service/inventory/domain"
	ledgerapp "storefront/internal/service/ledger/application"
	ledgerdomain "storefront/internal/service/ledger/domain"
)

const checkoutOperation = "checkout"

// beginAttempts: 第一次 Begin 输了、等到的又是 FAILED 终态时，
// 再试一次认领。FAILED 记录允许被下一个调用方重新执行。
const beginAttempts = 2

// CheckoutService 编排整个结算 saga：
// 幂等去重 -> 校验 -> 建单 -> 预占 -> 扣款 -> 提交 -> 开票 -> 履约交接 -> 台账收尾。
type CheckoutService struct {
	repo       domain.OrderRepository
	inventory  inventorydomain.Engine
	payment    port.PaymentService
	fulfilment port.FulfilmentService
	ledger     ledgerdomain.Ledger
	waiter     *ledgerapp.Waiter
	tracer     trace.Tracer
	cfg        *config.Config
}

func NewCheckoutService(
	repo domain.OrderRepository,
	inventory inventorydomain.Engine,
	payment port.PaymentService,
	fulfilment port.FulfilmentService,
	ledger ledgerdomain.Ledger,
	tracer trace.Tracer,
	cfg *config.Config,
) *CheckoutService {
	return &CheckoutService{
		repo:       repo,
		inventory:  inventory,
		payment:    payment,
		fulfilment: fulfilment,
		ledger:     ledger,
		waiter:     ledgerapp.NewWaiter(ledger, cfg.Ledger.PollInterval, cfg.Ledger.AwaitCeiling),
		tracer:     tracer,
		cfg:        cfg,
	}
}

// PlaceOrder 执行一次下单。幂等键是可选的：不带键的请求直接跑 saga，
// 不做任何去重。带键时同一个键并发到达恰好一个请求真正执行，
// 其余请求要么重放已完成的结果，要么在有界等待后收到 ErrDuplicateInProgress。
func (s *CheckoutService) PlaceOrder(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder")
	defer span.End()

	if req.IdemKey == "" {
		span.AddEvent("No idempotency key, executing without dedupe")
		return s.execute(ctx, req)
	}
	span.SetAttributes(attribute.String("idem_key", req.IdemKey))

	for attempt := 0; attempt < beginAttempts; attempt++ {
		rec, won, err := s.ledger.Begin(ctx, req.IdemKey, checkoutOperation)
		if err != nil {
			return nil, errors.Wrap(err, "ledger begin")
		}
		if won {
			return s.execute(ctx, req)
		}

		// 输家：已完成直接重放，进行中就有界等待赢家的结果。
		if rec.Status == ledgerdomain.StatusCompleted {
			return s.replay(span, rec)
		}
		if rec.Status == ledgerdomain.StatusInProgress {
			rec, err = s.waiter.Await(ctx, req.IdemKey)
			if err != nil {
				span.SetStatus(codes.Error, "duplicate in progress")
				return nil, err
			}
			if rec.Status == ledgerdomain.StatusCompleted {
				return s.replay(span, rec)
			}
		}
		// 到这里是 FAILED：回到循环头，下一次 Begin 会原子认领它。
	}

	span.SetStatus(codes.Error, "could not claim idempotency record")
	return nil, ledgerdomain.ErrDuplicateInProgress
}

// GetOrder 加载订单聚合。
func (s *CheckoutService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.GetOrder")
	defer span.End()
	return s.repo.FindByID(ctx, id)
}

// execute 以赢家身份跑整条 saga 责任链。
func (s *CheckoutService) execute(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	checkoutCtx := &saga.CheckoutContext{
		Ctx:    ctx,
		Tracer: s.tracer,

		IdemKey:       req.IdemKey,
		CustomerID:    req.CustomerID,
		Items:         req.Items,
		PaymentMethod: req.PaymentMethod,

		Repo:       s.repo,
		Inventory:  s.inventory,
		Payment:    s.payment,
		Fulfilment: s.fulfilment,
		Ledger:     s.ledger,

		PaymentMaxRetries:   s.cfg.Payment.MaxRetries,
		PaymentRetryBackoff: s.cfg.Payment.RetryBackoff,
		ReservationTTL:      s.cfg.Inventory.ReservationTTL,
	}

	validate := &saga.ValidateHandler{}
	validate.
		SetNext(&saga.CreateOrderHandler{}).
		SetNext(&saga.ReserveHandler{}).
		SetNext(&saga.ChargeHandler{}).
		SetNext(&saga.CommitHandler{}).
		SetNext(&saga.InvoiceHandler{}).
		SetNext(&saga.FulfilmentHandler{})

	if err := validate.Handle(checkoutCtx); err != nil {
		return nil, s.fail(ctx, checkoutCtx, err)
	}

	resp := &CheckoutResponse{
		OrderID:     checkoutCtx.Order.ID,
		OrderNumber: checkoutCtx.Order.OrderNumber,
		Status:      string(checkoutCtx.Order.State),
		TotalCents:  checkoutCtx.Order.TotalCents,
		Payment:     checkoutCtx.Charge,
	}
	if checkoutCtx.Order.Invoice != nil {
		resp.InvoiceID = checkoutCtx.Order.Invoice.ID
		resp.InvoiceNo = checkoutCtx.Order.Invoice.InvoiceNo
	}

	if req.IdemKey != "" {
		body, err := responseToMap(resp)
		if err != nil {
			log.Error().Err(err).Str("key", req.IdemKey).Msg("failed to serialize checkout response for ledger")
		} else if _, err := s.ledger.MarkCompleted(ctx, req.IdemKey, body); err != nil {
			// 订单已经完成，台账收尾失败只能记录：宁可留下可认领的记录，
			// 也不能对已扣款的订单报失败。
			log.Error().Err(err).Str("key", req.IdemKey).Msg("failed to mark ledger record completed")
		}
	}

	metrics.CheckoutsTotal.WithLabelValues("completed").Inc()
	log.Info().Str("order", resp.OrderNumber).Int64("total_cents", resp.TotalCents).
		Str("key", req.IdemKey).Msg("checkout completed")
	return resp, nil
}

// fail 走失败收尾：逆序补偿、订单打 FAILED、台账打 FAILED。
func (s *CheckoutService) fail(ctx context.Context, checkoutCtx *saga.CheckoutContext, cause error) error {
	checkoutCtx.TriggerCompensation(ctx)

	if checkoutCtx.Order != nil && checkoutCtx.Order.ID != 0 {
		checkoutCtx.Order.MarkFailed()
		if err := s.repo.UpdateState(ctx, checkoutCtx.Order.ID, domain.StateFailed); err != nil {
			log.Error().Err(err).Int64("order_id", checkoutCtx.Order.ID).
				Msg("failed to mark order failed")
		}
	}
	if checkoutCtx.IdemKey != "" {
		if _, err := s.ledger.MarkFailed(ctx, checkoutCtx.IdemKey, cause.Error()); err != nil {
			log.Error().Err(err).Str("key", checkoutCtx.IdemKey).
				Msg("failed to mark ledger record failed")
		}
	}

	metrics.CheckoutsTotal.WithLabelValues(outcomeLabel(cause)).Inc()
	log.Warn().Err(cause).Str("key", checkoutCtx.IdemKey).Msg("checkout failed")
	return cause
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, inventorydomain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, port.ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, port.ErrPaymentTransient):
		return "payment_transient"
	case errors.Is(err, domain.ErrInventoryRace):
		return "inventory_race"
	case errors.Is(err, inventorydomain.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "internal_error"
	}
}

// replay 把赢家写进台账的结果原样还给重复请求。
func (s *CheckoutService) replay(span trace.Span, rec *ledgerdomain.Record) (*CheckoutResponse, error) {
	resp, err := responseFromMap(rec.ResponseBody)
	if err != nil {
		return nil, errors.Wrap(err, "replay completed checkout")
	}
	resp.Replayed = true
	span.AddEvent("Replayed completed checkout from ledger")
	metrics.CheckoutsTotal.WithLabelValues("replayed").Inc()
	return resp, nil
}

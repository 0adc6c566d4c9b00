// internal/service/returns/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/config"
	"storefront/internal/pkg/metrics"
	checkoutdomain "storefront/internal/service/checkout/domain"
	checkoutport "storefront/internal/service/checkout/domain/port"
	inventorydomain "storefront/internal/service/inventory/domain"
	ledgerapp "storefront/internal/service/ledger/application"
	ledgerdomain "storefront/internal/service/ledger/domain"
	"storefront/internal/service/returns/domain"
	"storefront/internal/service/returns/domain/port"
)

const receiveOperation = "return.receive"

const beginAttempts = 2

// ReturnService 编排退货/退款流程：
// 校验资格 -> 建 RMA -> 幂等收货 -> 退款 -> 贷记单 + 库存回补。
type ReturnService struct {
	returns   domain.ReturnRepository
	orders    checkoutdomain.OrderRepository
	inventory inventorydomain.Engine
	payment   checkoutport.PaymentService
	policy    port.EligibilityPolicy
	ledger    ledgerdomain.Ledger
	waiter    *ledgerapp.Waiter
	tracer    trace.Tracer
}

func NewReturnService(
	returns domain.ReturnRepository,
	orders checkoutdomain.OrderRepository,
	inventory inventorydomain.Engine,
	payment checkoutport.PaymentService,
	policy port.EligibilityPolicy,
	ledger ledgerdomain.Ledger,
	tracer trace.Tracer,
	cfg *config.Config,
) *ReturnService {
	return &ReturnService{
		returns:   returns,
		orders:    orders,
		inventory: inventory,
		payment:   payment,
		policy:    policy,
		ledger:    ledger,
		waiter:    ledgerapp.NewWaiter(ledger, cfg.Ledger.PollInterval, cfg.Ledger.AwaitCeiling),
		tracer:    tracer,
	}
}

// CreateReturn 校验并创建一张 REQUESTED 状态的退货单。
// 超退校验把该订单既往所有未被拒绝的退货单里的数量都算进去。
func (s *ReturnService) CreateReturn(ctx context.Context, req *CreateReturnRequest) (*CreateReturnResponse, error) {
	ctx, span := s.tracer.Start(ctx, "returns.CreateReturn")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", req.OrderID))

	if len(req.Lines) == 0 {
		return nil, errors.Wrap(domain.ErrReturnValidation, "return must contain at least one line")
	}

	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.State != checkoutdomain.StateCompleted {
		return nil, errors.Wrapf(domain.ErrReturnValidation, "order %s is not completed", order.OrderNumber)
	}

	alreadyReturned, err := s.returns.ReturnedQtyByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	daysSinceOrder := int(time.Since(order.CreatedAt).Hours() / 24)

	now := time.Now()
	ret := &domain.ReturnRequest{
		RMANumber: domain.NewRMANumber(),
		OrderID:   order.ID,
		Status:    domain.ReturnRequested,
		Reason:    req.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, spec := range req.Lines {
		if spec.Qty <= 0 {
			return nil, errors.Wrapf(domain.ErrReturnValidation, "quantity for %s must be positive", spec.SKU)
		}
		line := order.LineBySKU(spec.SKU)
		if line == nil {
			return nil, errors.Wrapf(domain.ErrReturnValidation, "sku %s is not part of order %s", spec.SKU, order.OrderNumber)
		}
		if spec.Qty+alreadyReturned[spec.SKU] > line.Qty {
			return nil, errors.Wrapf(domain.ErrOverReturn, "sku %s: requested %d, purchased %d, already returned %d",
				spec.SKU, spec.Qty, line.Qty, alreadyReturned[spec.SKU])
		}

		eligible, err := s.policy.Eligible(ctx, port.Fact{
			SKU:            spec.SKU,
			Qty:            spec.Qty,
			Purchased:      line.Qty,
			Reason:         req.Reason,
			DaysSinceOrder: daysSinceOrder,
		})
		if err != nil {
			return nil, err
		}
		if !eligible {
			return nil, errors.Wrapf(domain.ErrNotEligible, "sku %s", spec.SKU)
		}

		ret.Lines = append(ret.Lines, domain.ReturnLine{
			SKU:             spec.SKU,
			Qty:             spec.Qty,
			UnitAmountCents: line.PriceCents,
		})
	}

	if err := s.returns.Save(ctx, ret); err != nil {
		return nil, err
	}
	log.Info().Str("rma", ret.RMANumber).Int64("order_id", order.ID).
		Int("lines", len(ret.Lines)).Msg("return request created")
	return &CreateReturnResponse{
		ReturnID:  ret.ID,
		RMANumber: ret.RMANumber,
		Status:    string(ret.Status),
	}, nil
}

// ReceiveReturn 仓库确认收到退货后调用：幂等退款并回补库存。
// 幂等键与退货单 ID 组合，同一个键用在不同退货单上互不影响。
func (s *ReturnService) ReceiveReturn(ctx context.Context, returnID int64, idemKey string) (*ReceiveReturnResponse, error) {
	ctx, span := s.tracer.Start(ctx, "returns.ReceiveReturn")
	defer span.End()

	if idemKey == "" {
		return nil, errors.Wrap(domain.ErrReturnValidation, "idempotency key is required")
	}
	key := fmt.Sprintf("%s:%d:%s", receiveOperation, returnID, idemKey)
	span.SetAttributes(attribute.String("idem_key", key))

	for attempt := 0; attempt < beginAttempts; attempt++ {
		rec, won, err := s.ledger.Begin(ctx, key, receiveOperation)
		if err != nil {
			return nil, errors.Wrap(err, "ledger begin")
		}
		if won {
			resp, err := s.receive(ctx, returnID)
			if err != nil {
				if _, markErr := s.ledger.MarkFailed(ctx, key, err.Error()); markErr != nil {
					log.Error().Err(markErr).Str("key", key).Msg("failed to mark ledger record failed")
				}
				metrics.ReturnsReceivedTotal.WithLabelValues(receiveOutcome(err)).Inc()
				return nil, err
			}
			if body, mapErr := receiveResponseToMap(resp); mapErr != nil {
				log.Error().Err(mapErr).Str("key", key).Msg("failed to serialize receive response for ledger")
			} else if _, markErr := s.ledger.MarkCompleted(ctx, key, body); markErr != nil {
				log.Error().Err(markErr).Str("key", key).Msg("failed to mark ledger record completed")
			}
			if resp.Replayed {
				metrics.ReturnsReceivedTotal.WithLabelValues("replayed").Inc()
			} else {
				metrics.ReturnsReceivedTotal.WithLabelValues("refunded").Inc()
			}
			return resp, nil
		}

		if rec.Status == ledgerdomain.StatusCompleted {
			return s.replay(span, rec)
		}
		if rec.Status == ledgerdomain.StatusInProgress {
			rec, err = s.waiter.Await(ctx, key)
			if err != nil {
				span.SetStatus(codes.Error, "duplicate in progress")
				return nil, err
			}
			if rec.Status == ledgerdomain.StatusCompleted {
				return s.replay(span, rec)
			}
		}
		// FAILED：下一次 Begin 会原子认领并重试整个收货流程。
	}

	span.SetStatus(codes.Error, "could not claim idempotency record")
	return nil, ledgerdomain.ErrDuplicateInProgress
}

// receive 以赢家身份执行收货+退款。
// 流程分两段：先落 RECEIVED_PENDING_REFUND（货已入库的事实），
// 退款成功后才开贷记单、回补库存并落 REFUNDED。退款遇到瞬时故障时
// 停在中间态，台账记 FAILED，下一次携带同样组合键的请求会继续推进。
func (s *ReturnService) receive(ctx context.Context, returnID int64) (*ReceiveReturnResponse, error) {
	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return nil, err
	}

	switch ret.Status {
	case domain.ReturnRequested:
		if err := ret.MarkReceived(); err != nil {
			return nil, err
		}
		if err := s.returns.Update(ctx, ret); err != nil {
			return nil, err
		}
	case domain.ReturnReceivedPendingRefund:
		// 上一轮退款失败后的重试，直接继续退款。
	case domain.ReturnRefunded:
		// 换了新键再收一次已退款的单子：从贷记单重建响应，
		// 绝不再退第二次款、补第二次库存。
		return refundedReplay(ret), nil
	default:
		return nil, domain.ErrReturnNotReceivable
	}

	order, err := s.orders.FindByID(ctx, ret.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Invoice == nil {
		return nil, errors.Errorf("order %s has no invoice to refund against", order.OrderNumber)
	}

	amount := ret.RefundAmountCents()
	refund, err := s.payment.Refund(ctx, order.Invoice.TransactionID, amount)
	if err != nil {
		// 瞬时故障留在中间态等重试，确定性失败打上终态。
		if !errors.Is(err, checkoutport.ErrPaymentTransient) {
			s.markReturnFailed(ctx, ret)
		}
		return nil, err
	}
	metrics.RefundsTotal.WithLabelValues("return").Inc()

	note := &domain.CreditNote{
		ReturnID:     ret.ID,
		CreditNoteNo: domain.NewCreditNoteNumber(),
		AmountCents:  amount,
		CreatedAt:    time.Now(),
	}
	if err := s.returns.SaveCreditNote(ctx, note); err != nil {
		s.markReturnFailed(ctx, ret)
		return nil, err
	}
	for _, line := range ret.Lines {
		if err := s.inventory.Restock(ctx, line.SKU, line.Qty); err != nil {
			// 退款已出、贷记单已开，回补失败只能记录并人工对账。
			log.Error().Err(err).Str("sku", line.SKU).Int("qty", line.Qty).
				Str("rma", ret.RMANumber).Msg("failed to restock returned line")
		}
	}
	if err := ret.MarkRefunded(); err != nil {
		return nil, err
	}
	if err := s.returns.Update(ctx, ret); err != nil {
		return nil, err
	}

	if fully, err := s.fullyReturned(ctx, order); err != nil {
		log.Warn().Err(err).Int64("order_id", order.ID).Msg("could not evaluate full-return state")
	} else if fully {
		if err := s.orders.UpdateState(ctx, order.ID, checkoutdomain.StateRefunded); err != nil {
			log.Error().Err(err).Int64("order_id", order.ID).Msg("failed to mark order refunded")
		}
	}

	log.Info().Str("rma", ret.RMANumber).Int64("amount_cents", amount).
		Str("credit_note", note.CreditNoteNo).Msg("return refunded")
	return &ReceiveReturnResponse{
		ReturnID:      ret.ID,
		RMANumber:     ret.RMANumber,
		Status:        string(ret.Status),
		RefundedCents: amount,
		CreditNoteNo:  note.CreditNoteNo,
		RefundID:      refund.RefundID,
	}, nil
}

// refundedReplay 为已退款的单子重建收货响应。贷记单是当时落库的事实，
// 金额以它为准；没有贷记单（异常数据）时退而求其次用行金额重算。
func refundedReplay(ret *domain.ReturnRequest) *ReceiveReturnResponse {
	resp := &ReceiveReturnResponse{
		ReturnID:      ret.ID,
		RMANumber:     ret.RMANumber,
		Status:        string(ret.Status),
		RefundedCents: ret.RefundAmountCents(),
		Replayed:      true,
	}
	if ret.CreditNote != nil {
		resp.CreditNoteNo = ret.CreditNote.CreditNoteNo
		resp.RefundedCents = ret.CreditNote.AmountCents
	}
	return resp
}

// markReturnFailed 把退货单落到终态 FAILED。收尾动作，失败只记日志。
func (s *ReturnService) markReturnFailed(ctx context.Context, ret *domain.ReturnRequest) {
	if err := ret.MarkFailed(); err != nil {
		log.Error().Err(err).Str("rma", ret.RMANumber).Msg("cannot transition return to failed")
		return
	}
	if err := s.returns.Update(ctx, ret); err != nil {
		log.Error().Err(err).Str("rma", ret.RMANumber).Msg("failed to persist failed return")
	}
}

// fullyReturned 判断订单的每一行是否都已全额退完。
func (s *ReturnService) fullyReturned(ctx context.Context, order *checkoutdomain.Order) (bool, error) {
	returned, err := s.returns.ReturnedQtyByOrder(ctx, order.ID, domain.ReturnRefunded)
	if err != nil {
		return false, err
	}
	for _, line := range order.Lines {
		if returned[line.SKU] < line.Qty {
			return false, nil
		}
	}
	return true, nil
}

// GetReturn 按 ID 加载退货单。
func (s *ReturnService) GetReturn(ctx context.Context, id int64) (*domain.ReturnRequest, error) {
	return s.returns.FindByID(ctx, id)
}

func (s *ReturnService) replay(span trace.Span, rec *ledgerdomain.Record) (*ReceiveReturnResponse, error) {
	resp, err := receiveResponseFromMap(rec.ResponseBody)
	if err != nil {
		return nil, errors.Wrap(err, "replay completed receive")
	}
	resp.Replayed = true
	span.AddEvent("Replayed completed receive from ledger")
	metrics.ReturnsReceivedTotal.WithLabelValues("replayed").Inc()
	return resp, nil
}

func receiveOutcome(err error) string {
	switch {
	case errors.Is(err, checkoutport.ErrPaymentTransient):
		return "transient_failure"
	case errors.Is(err, checkoutport.ErrRefundFailed):
		return "refund_failed"
	case errors.Is(err, domain.ErrReturnNotReceivable):
		return "not_receivable"
	case errors.Is(err, domain.ErrReturnNotFound):
		return "not_found"
	default:
		return "error"
	}
}

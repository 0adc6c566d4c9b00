// internal/service/returns/application/service_test.go
package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/config"
	checkoutapp "storefront/internal/service/checkout/application"
	checkoutdomain "storefront/internal/service/checkout/domain"
	checkoutport "storefront/internal/service/checkout/domain/port"
	checkoutinfra "storefront/internal/service/checkout/infrastructure"
	"storefront/internal/service/checkout/infrastructure/adapter"
	fulfilmentapp "storefront/internal/service/fulfilment/application"
	fulfilmentinfra "storefront/internal/service/fulfilment/infrastructure"
	inventorydomain "storefront/internal/service/inventory/domain"
	inventoryinfra "storefront/internal/service/inventory/infrastructure"
	ledgerinfra "storefront/internal/service/ledger/infrastructure"
	"storefront/internal/service/returns/application"
	returnsdomain "storefront/internal/service/returns/domain"
	returnsinfra "storefront/internal/service/returns/infrastructure"
	"storefront/internal/service/returns/infrastructure/rule"
)

// flakyRefundPayment 包装 mock 网关：可以注入瞬时或确定性退款失败，
// 并统计实际成功的退款次数。
type flakyRefundPayment struct {
	*adapter.MockPaymentAdapter
	refundFailures int
	declineRefunds bool
	refunds        int
}

func (p *flakyRefundPayment) Refund(ctx context.Context, transactionID string, amountCents int64) (*checkoutport.RefundResult, error) {
	if p.refundFailures > 0 {
		p.refundFailures--
		return nil, checkoutport.ErrPaymentTransient
	}
	if p.declineRefunds {
		return nil, checkoutport.ErrRefundFailed
	}
	p.refunds++
	return p.MockPaymentAdapter.Refund(ctx, transactionID, amountCents)
}

type returnsFixture struct {
	engine  *inventoryinfra.MemoryEngine
	orders  *checkoutinfra.MemoryOrderRepository
	payment *flakyRefundPayment
	svc     *application.ReturnService
	orderID int64
}

// newReturnsFixture 通过真实的结算流程铺出一张已完成、带发票的订单
// （买 2 件，库存从 5 落到 3），退货测试在其上展开。
func newReturnsFixture(t *testing.T, eligibilityRule string) *returnsFixture {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Ledger.AwaitCeiling = 500 * time.Millisecond
	cfg.Ledger.PollInterval = 5 * time.Millisecond
	if eligibilityRule != "" {
		cfg.Returns.EligibilityRule = eligibilityRule
	}

	engine := inventoryinfra.NewMemoryEngine(time.Second)
	if err := engine.AddProduct(ctx, &inventorydomain.Product{
		SKU: "SKU-1", Name: "Widget", PriceCents: 1000, Active: true, Stock: 5,
	}); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	orders := checkoutinfra.NewMemoryOrderRepository()
	ledger := ledgerinfra.NewMemoryLedger()
	payment := &flakyRefundPayment{MockPaymentAdapter: adapter.NewMockPaymentAdapter(0)}
	tracer := otel.Tracer("test")
	fulfilment := fulfilmentapp.NewFulfilmentService(fulfilmentinfra.NewMemoryTaskRepository(), adapter.NewMockCourierAdapter(), nil, tracer)

	checkout := checkoutapp.NewCheckoutService(orders, engine, payment, fulfilment, ledger, tracer, cfg)
	resp, err := checkout.PlaceOrder(ctx, &checkoutapp.CheckoutRequest{
		IdemKey:       "seed-order",
		Items:         []checkoutdomain.ItemSpec{{SKU: "SKU-1", Qty: 2}},
		PaymentMethod: checkoutport.PaymentMethod{Type: "card", Token: "tok-1"},
	})
	if err != nil {
		t.Fatalf("seed PlaceOrder: %v", err)
	}

	policy, err := rule.NewCELPolicy(cfg.Returns.EligibilityRule)
	if err != nil {
		t.Fatalf("NewCELPolicy: %v", err)
	}
	svc := application.NewReturnService(
		returnsinfra.NewMemoryReturnRepository(), orders, engine, payment, policy, ledger, tracer, cfg)

	return &returnsFixture{engine: engine, orders: orders, payment: payment, svc: svc, orderID: resp.OrderID}
}

func TestCreateReturnValidations(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	if _, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: 999, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	}); !errors.Is(err, checkoutdomain.ErrOrderNotFound) {
		t.Fatalf("unknown order err = %v, want ErrOrderNotFound", err)
	}

	if _, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "NOPE", Qty: 1}},
	}); !errors.Is(err, returnsdomain.ErrReturnValidation) {
		t.Fatalf("foreign sku err = %v, want ErrReturnValidation", err)
	}

	if _, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 3}},
	}); !errors.Is(err, returnsdomain.ErrOverReturn) {
		t.Fatalf("over-return err = %v, want ErrOverReturn", err)
	}
}

// 超退校验要把既往退货单里的数量一起算进去。
func TestCreateReturnCountsEarlierReturns(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	if _, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	}); err != nil {
		t.Fatalf("first CreateReturn: %v", err)
	}
	if _, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 2}},
	}); !errors.Is(err, returnsdomain.ErrOverReturn) {
		t.Fatalf("err = %v, want ErrOverReturn across returns", err)
	}
}

func TestReceiveReturnRefundsAndRestocks(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	created, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Reason: "defect", Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("CreateReturn: %v", err)
	}

	resp, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1")
	if err != nil {
		t.Fatalf("ReceiveReturn: %v", err)
	}
	if resp.Status != string(returnsdomain.ReturnRefunded) {
		t.Fatalf("status = %s, want REFUNDED", resp.Status)
	}
	if resp.RefundedCents != 1000 {
		t.Fatalf("refunded = %d, want 1000 (snapshot unit price)", resp.RefundedCents)
	}
	if resp.CreditNoteNo == "" || resp.RefundID == "" {
		t.Fatalf("response missing credit note / refund id: %+v", resp)
	}

	// 库存回补：3 + 1 = 4。
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 4 {
		t.Fatalf("available = %d, want 4 after restock", avail)
	}

	// 只退了一件，订单保持 COMPLETED。
	order, _ := f.orders.FindByID(ctx, f.orderID)
	if order.State != checkoutdomain.StateCompleted {
		t.Fatalf("order state = %s, want COMPLETED after partial return", order.State)
	}
}

func TestReceiveReturnIsIdempotent(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	created, _ := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	})
	first, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1")
	if err != nil {
		t.Fatalf("first ReceiveReturn: %v", err)
	}
	second, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1")
	if err != nil {
		t.Fatalf("second ReceiveReturn: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second receive should be a ledger replay")
	}
	if second.CreditNoteNo != first.CreditNoteNo {
		t.Fatalf("credit note changed across replays: %s vs %s", second.CreditNoteNo, first.CreditNoteNo)
	}
	// 重放不会再回补一次库存。
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 4 {
		t.Fatalf("available = %d, want 4 (restocked exactly once)", avail)
	}
}

// 换了新幂等键再收已退款的单子，也必须重放贷记单而不是报错。
func TestReceiveRefundedReturnWithFreshKeyReplays(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	created, _ := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	})
	first, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1")
	if err != nil {
		t.Fatalf("first ReceiveReturn: %v", err)
	}

	again, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-2")
	if err != nil {
		t.Fatalf("fresh-key ReceiveReturn: %v", err)
	}
	if !again.Replayed {
		t.Fatal("fresh-key receive on refunded return should replay")
	}
	if again.CreditNoteNo != first.CreditNoteNo || again.RefundedCents != first.RefundedCents {
		t.Fatalf("replay diverged: %+v vs %+v", again, first)
	}
	if f.payment.refunds != 1 {
		t.Fatalf("refunds = %d, want exactly 1", f.payment.refunds)
	}
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 4 {
		t.Fatalf("available = %d, want 4 (restocked exactly once)", avail)
	}
}

func TestDefinitiveRefundFailureMarksReturnFailed(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	created, _ := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	})

	f.payment.declineRefunds = true
	if _, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1"); !errors.Is(err, checkoutport.ErrRefundFailed) {
		t.Fatalf("err = %v, want ErrRefundFailed", err)
	}

	// 确定性失败落终态，和可重试的中间态区分开；库存不回补。
	ret, _ := f.svc.GetReturn(ctx, created.ReturnID)
	if ret.Status != returnsdomain.ReturnFailed {
		t.Fatalf("status = %s, want FAILED", ret.Status)
	}
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3 after failed refund", avail)
	}

	f.payment.declineRefunds = false
	if _, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-2"); !errors.Is(err, returnsdomain.ErrReturnNotReceivable) {
		t.Fatalf("receive on failed return err = %v, want ErrReturnNotReceivable", err)
	}
}

func TestReceiveReturnTransientRefundIsRetryable(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	created, _ := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	})

	f.payment.refundFailures = 1
	if _, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1"); !errors.Is(err, checkoutport.ErrPaymentTransient) {
		t.Fatalf("err = %v, want ErrPaymentTransient", err)
	}

	// 货已入库但还没退款：停在中间态，库存未回补。
	ret, _ := f.svc.GetReturn(ctx, created.ReturnID)
	if ret.Status != returnsdomain.ReturnReceivedPendingRefund {
		t.Fatalf("status = %s, want RECEIVED_PENDING_REFUND", ret.Status)
	}
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3 before refund settles", avail)
	}

	// 同一个组合键重试：FAILED 台账记录被认领，流程从中间态继续。
	resp, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1")
	if err != nil {
		t.Fatalf("retry ReceiveReturn: %v", err)
	}
	if resp.Status != string(returnsdomain.ReturnRefunded) {
		t.Fatalf("status = %s, want REFUNDED after retry", resp.Status)
	}
	avail, _ = f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 4 {
		t.Fatalf("available = %d, want 4 after retry restock", avail)
	}
}

func TestFullReturnMarksOrderRefunded(t *testing.T) {
	f := newReturnsFixture(t, "")
	ctx := context.Background()

	created, _ := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 2}},
	})
	resp, err := f.svc.ReceiveReturn(ctx, created.ReturnID, "recv-1")
	if err != nil {
		t.Fatalf("ReceiveReturn: %v", err)
	}
	if resp.RefundedCents != 2000 {
		t.Fatalf("refunded = %d, want 2000", resp.RefundedCents)
	}

	order, _ := f.orders.FindByID(ctx, f.orderID)
	if order.State != checkoutdomain.StateRefunded {
		t.Fatalf("order state = %s, want REFUNDED after full return", order.State)
	}
}

func TestEligibilityPolicyRejectsLine(t *testing.T) {
	f := newReturnsFixture(t, `qty <= purchased && reason != "changed_mind"`)
	ctx := context.Background()

	if _, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Reason: "changed_mind",
		Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	}); !errors.Is(err, returnsdomain.ErrNotEligible) {
		t.Fatalf("err = %v, want ErrNotEligible", err)
	}

	if _, err := f.svc.CreateReturn(ctx, &application.CreateReturnRequest{
		OrderID: f.orderID, Reason: "defect",
		Lines: []application.ReturnLineSpec{{SKU: "SKU-1", Qty: 1}},
	}); err != nil {
		t.Fatalf("eligible return rejected: %v", err)
	}
}

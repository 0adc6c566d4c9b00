// internal/service/checkout/application/service_test.go
package application_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/config"
	"storefront/internal/service/checkout/application"
	checkoutdomain "storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
	checkoutinfra "storefront/internal/service/checkout/infrastructure"
	"storefront/internal/service/checkout/infrastructure/adapter"
	fulfilmentapp "storefront/internal/service/fulfilment/application"
	fulfilmentdomain "storefront/internal/service/fulfilment/domain"
	fulfilmentinfra "storefront/internal/service/fulfilment/infrastructure"
	inventorydomain "storefront/internal/service/inventory/domain"
	inventoryinfra "storefront/internal/service/inventory/infrastructure"
	ledgerdomain "storefront/internal/service/ledger/domain"
	ledgerinfra "storefront/internal/service/ledger/infrastructure"
)

type fixture struct {
	engine  *inventoryinfra.MemoryEngine
	orders  *checkoutinfra.MemoryOrderRepository
	ledger  *ledgerinfra.MemoryLedger
	payment *countingPayment
	tasks   *fulfilmentinfra.MemoryTaskRepository
	svc     *application.CheckoutService
	cfg     *config.Config
}

// countingPayment 在 mock 网关外面记一笔退款次数，便于断言补偿路径。
type countingPayment struct {
	*adapter.MockPaymentAdapter
	refunds int32
}

func (p *countingPayment) Refund(ctx context.Context, transactionID string, amountCents int64) (*port.RefundResult, error) {
	atomic.AddInt32(&p.refunds, 1)
	return p.MockPaymentAdapter.Refund(ctx, transactionID, amountCents)
}

func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Ledger.AwaitCeiling = 500 * time.Millisecond
	cfg.Ledger.PollInterval = 5 * time.Millisecond
	cfg.Payment.RetryBackoff = time.Millisecond

	engine := inventoryinfra.NewMemoryEngine(time.Second)
	if err := engine.AddProduct(context.Background(), &inventorydomain.Product{
		SKU: "SKU-1", Name: "Widget", PriceCents: 1000, Active: true, Stock: stock,
	}); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	orders := checkoutinfra.NewMemoryOrderRepository()
	ledger := ledgerinfra.NewMemoryLedger()
	payment := &countingPayment{MockPaymentAdapter: adapter.NewMockPaymentAdapter(0)}
	tasks := fulfilmentinfra.NewMemoryTaskRepository()
	tracer := otel.Tracer("test")

	fulfilment := fulfilmentapp.NewFulfilmentService(tasks, adapter.NewMockCourierAdapter(), nil, tracer)
	svc := application.NewCheckoutService(orders, engine, payment, fulfilment, ledger, tracer, cfg)
	return &fixture{engine: engine, orders: orders, ledger: ledger, payment: payment, tasks: tasks, svc: svc, cfg: cfg}
}

func checkoutRequest(key string, qty int) *application.CheckoutRequest {
	return &application.CheckoutRequest{
		IdemKey:       key,
		Items:         []checkoutdomain.ItemSpec{{SKU: "SKU-1", Qty: qty}},
		PaymentMethod: port.PaymentMethod{Type: "card", Token: "tok-1"},
	}
}

func TestPlaceOrderHappyPath(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	resp, err := f.svc.PlaceOrder(ctx, checkoutRequest("key-1", 2))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if resp.Status != string(checkoutdomain.StateCompleted) {
		t.Fatalf("status = %s, want COMPLETED", resp.Status)
	}
	if resp.TotalCents != 2000 {
		t.Fatalf("total = %d, want 2000", resp.TotalCents)
	}
	if resp.InvoiceNo == "" || resp.Payment == nil || resp.Payment.TransactionID == "" {
		t.Fatalf("response missing invoice/payment: %+v", resp)
	}

	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3", avail)
	}
	p, _ := f.engine.ProductBySKU(ctx, "SKU-1")
	if p.Stock != 3 {
		t.Fatalf("stock = %d, want 3", p.Stock)
	}

	rec, err := f.ledger.Get(ctx, "key-1")
	if err != nil || rec.Status != ledgerdomain.StatusCompleted {
		t.Fatalf("ledger record = %+v (err %v), want COMPLETED", rec, err)
	}

	task, err := f.tasks.FindByOrderID(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("packing task missing: %v", err)
	}
	if task.Status != fulfilmentdomain.TaskPending {
		t.Fatalf("task status = %s, want PENDING", task.Status)
	}
}

func TestPlaceOrderReplaysCompletedKey(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	first, err := f.svc.PlaceOrder(ctx, checkoutRequest("key-1", 2))
	if err != nil {
		t.Fatalf("first PlaceOrder: %v", err)
	}
	second, err := f.svc.PlaceOrder(ctx, checkoutRequest("key-1", 2))
	if err != nil {
		t.Fatalf("second PlaceOrder: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second call should be a ledger replay")
	}
	if second.OrderNumber != first.OrderNumber || second.OrderID != first.OrderID {
		t.Fatalf("replay returned a different order: %+v vs %+v", second, first)
	}
	// 重复请求不会再扣一次库存。
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3", avail)
	}
}

func TestPlaceOrderWithoutKeySkipsDedupe(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	first, err := f.svc.PlaceOrder(ctx, checkoutRequest("", 1))
	if err != nil {
		t.Fatalf("first PlaceOrder: %v", err)
	}
	if first.Status != string(checkoutdomain.StateCompleted) {
		t.Fatalf("status = %s, want COMPLETED", first.Status)
	}
	second, err := f.svc.PlaceOrder(ctx, checkoutRequest("", 1))
	if err != nil {
		t.Fatalf("second PlaceOrder: %v", err)
	}

	// 无键请求各下各的单，没有重放。
	if second.Replayed || second.OrderID == first.OrderID ||
		second.Payment.TransactionID == first.Payment.TransactionID {
		t.Fatalf("no-key checkouts deduped: %+v vs %+v", second, first)
	}
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3 after two independent orders", avail)
	}
	// 台账里不会留下空键记录。
	if _, err := f.ledger.Get(ctx, ""); !errors.Is(err, ledgerdomain.ErrRecordNotFound) {
		t.Fatalf("empty-key ledger lookup err = %v, want ErrRecordNotFound", err)
	}
}

func TestPlaceOrderConcurrentSameKeyCreatesOneOrder(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	orderNumbers := make(map[string]bool)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.svc.PlaceOrder(ctx, checkoutRequest("key-1", 2))
			if err != nil {
				// 有界等待耗尽是允许的结果，重复执行不是。
				if !errors.Is(err, ledgerdomain.ErrDuplicateInProgress) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			orderNumbers[resp.OrderNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(orderNumbers) != 1 {
		t.Fatalf("distinct orders = %d, want 1", len(orderNumbers))
	}
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 3 {
		t.Fatalf("available = %d, want 3 (single execution)", avail)
	}
}

func TestPlaceOrderPaymentDeclinedReleasesStock(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	req := checkoutRequest("key-1", 2)
	req.PaymentMethod.ForceDecline = true
	_, err := f.svc.PlaceOrder(ctx, req)
	if !errors.Is(err, port.ErrPaymentDeclined) {
		t.Fatalf("err = %v, want ErrPaymentDeclined", err)
	}

	// 预占被补偿释放，权威库存没动。
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 5 {
		t.Fatalf("available = %d, want 5 after release", avail)
	}
	p, _ := f.engine.ProductBySKU(ctx, "SKU-1")
	if p.Stock != 5 {
		t.Fatalf("stock = %d, want 5", p.Stock)
	}

	rec, err := f.ledger.Get(ctx, "key-1")
	if err != nil || rec.Status != ledgerdomain.StatusFailed {
		t.Fatalf("ledger record = %+v (err %v), want FAILED", rec, err)
	}
	if atomic.LoadInt32(&f.payment.refunds) != 0 {
		t.Fatal("declined charge must not trigger a refund")
	}
}

func TestPlaceOrderFailedKeyIsRetryable(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	declined := checkoutRequest("key-1", 2)
	declined.PaymentMethod.ForceDecline = true
	if _, err := f.svc.PlaceOrder(ctx, declined); !errors.Is(err, port.ErrPaymentDeclined) {
		t.Fatalf("err = %v, want ErrPaymentDeclined", err)
	}

	// 同一个键带可用的支付方式重试：FAILED 记录被认领并真正重新执行。
	resp, err := f.svc.PlaceOrder(ctx, checkoutRequest("key-1", 2))
	if err != nil {
		t.Fatalf("retry PlaceOrder: %v", err)
	}
	if resp.Replayed {
		t.Fatal("retry after failure must execute, not replay")
	}
	if resp.Status != string(checkoutdomain.StateCompleted) {
		t.Fatalf("status = %s, want COMPLETED", resp.Status)
	}
}

func TestPlaceOrderRetriesTransientPaymentFailure(t *testing.T) {
	f := newFixture(t, 5)
	f.payment.FailTransientTimes = 1

	resp, err := f.svc.PlaceOrder(context.Background(), checkoutRequest("key-1", 1))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if resp.Status != string(checkoutdomain.StateCompleted) {
		t.Fatalf("status = %s, want COMPLETED after retry", resp.Status)
	}
}

func TestPlaceOrderTransientRetriesAreBounded(t *testing.T) {
	f := newFixture(t, 5)
	f.payment.FailTransientTimes = 10
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, checkoutRequest("key-1", 1))
	if !errors.Is(err, port.ErrPaymentTransient) {
		t.Fatalf("err = %v, want ErrPaymentTransient", err)
	}
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 5 {
		t.Fatalf("available = %d, want 5 after release", avail)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *application.CheckoutRequest
	}{
		{"empty order", &application.CheckoutRequest{IdemKey: "k1"}},
		{"unknown sku", checkoutRequestWith("k2", "NOPE", 1)},
		{"non-positive qty", checkoutRequestWith("k3", "SKU-1", 0)},
		{"duplicate line", &application.CheckoutRequest{
			IdemKey:       "k4",
			Items:         []checkoutdomain.ItemSpec{{SKU: "SKU-1", Qty: 1}, {SKU: "SKU-1", Qty: 1}},
			PaymentMethod: port.PaymentMethod{Type: "card"},
		}},
	}
	for _, tc := range cases {
		if _, err := f.svc.PlaceOrder(ctx, tc.req); !errors.Is(err, checkoutdomain.ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", tc.name, err)
		}
	}
}

func checkoutRequestWith(key, sku string, qty int) *application.CheckoutRequest {
	return &application.CheckoutRequest{
		IdemKey:       key,
		Items:         []checkoutdomain.ItemSpec{{SKU: sku, Qty: qty}},
		PaymentMethod: port.PaymentMethod{Type: "card"},
	}
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.PlaceOrder(context.Background(), checkoutRequest("key-1", 2))
	if !errors.Is(err, inventorydomain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

// raceEngine 让 Commit 永远输掉竞态，用来驱动退款补偿路径。
type raceEngine struct {
	inventorydomain.Engine
}

func (e *raceEngine) Commit(ctx context.Context, reservationID, orderID int64) (*inventorydomain.Reservation, error) {
	return nil, inventorydomain.ErrInventoryRace
}

func TestCommitRaceTriggersRefund(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	tracer := otel.Tracer("test")
	fulfilment := fulfilmentapp.NewFulfilmentService(f.tasks, adapter.NewMockCourierAdapter(), nil, tracer)
	svc := application.NewCheckoutService(f.orders, &raceEngine{Engine: f.engine}, f.payment, fulfilment, f.ledger, tracer, f.cfg)

	_, err := svc.PlaceOrder(ctx, checkoutRequest("key-1", 2))
	if !errors.Is(err, checkoutdomain.ErrInventoryRace) {
		t.Fatalf("err = %v, want ErrInventoryRace", err)
	}

	// 钱已扣又提交不了：必须退款，预占必须释放，库存不能动。
	if got := atomic.LoadInt32(&f.payment.refunds); got != 1 {
		t.Fatalf("refunds = %d, want 1", got)
	}
	avail, _ := f.engine.AvailableQuantity(ctx, "SKU-1")
	if avail != 5 {
		t.Fatalf("available = %d, want 5", avail)
	}
	p, _ := f.engine.ProductBySKU(ctx, "SKU-1")
	if p.Stock != 5 {
		t.Fatalf("stock = %d, want 5", p.Stock)
	}
}

// brokenFulfilment 模拟履约上下文不可用。
type brokenFulfilment struct{}

func (brokenFulfilment) CreatePackingTaskForOrder(ctx context.Context, orderID int64, orderNumber string) error {
	return errors.New("kafka unreachable")
}

func TestFulfilmentFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t, 5)
	tracer := otel.Tracer("test")
	svc := application.NewCheckoutService(f.orders, f.engine, f.payment, brokenFulfilment{}, f.ledger, tracer, f.cfg)

	resp, err := svc.PlaceOrder(context.Background(), checkoutRequest("key-1", 1))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if resp.Status != string(checkoutdomain.StateCompleted) {
		t.Fatalf("status = %s, want COMPLETED despite fulfilment outage", resp.Status)
	}
}

// internal/service/checkout/domain/order.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemSpec 是调用方请求里的一行：要买什么、买多少。
type ItemSpec struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// OrderLine 是订单行，单价在下单时刻从目录快照，之后不再跟随价格变动。
type OrderLine struct {
	ID         int64
	OrderID    int64
	SKU        string
	Name       string
	Qty        int
	PriceCents int64
}

// Order 是订单聚合的根实体。
type Order struct {
	ID          int64
	OrderNumber string
	CustomerID  *int64
	State       State
	TotalCents  int64
	Lines       []OrderLine
	Invoice     *Invoice
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Invoice 关联捕获成功的支付结果。
type Invoice struct {
	ID            int64
	OrderID       int64
	InvoiceNo     string
	TotalCents    int64
	TaxCents      int64
	TransactionID string
	CreatedAt     time.Time
}

// NewOrder 创建一个新的 IN_PROGRESS 订单实例。
// 订单头和行在触碰库存之前就持久化，保证后续失败也有审计痕迹。
func NewOrder(customerID *int64, lines []OrderLine, totalCents int64) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	now := time.Now()
	return &Order{
		OrderNumber: NewOrderNumber(),
		CustomerID:  customerID,
		State:       StateInProgress,
		TotalCents:  totalCents,
		Lines:       lines,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkCompleted 把订单流转为完成。终态只允许写一次。
func (o *Order) MarkCompleted() error {
	if o.State.Terminal() {
		return ErrOrderAlreadyTerminal
	}
	o.State = StateCompleted
	o.UpdatedAt = time.Now()
	return nil
}

// MarkFailed 把订单标记为失败。已是终态则保持不变。
func (o *Order) MarkFailed() {
	if o.State.Terminal() {
		return
	}
	o.State = StateFailed
	o.UpdatedAt = time.Now()
}

// MarkRefunded 退货清算完毕后由退货 saga 调用。
func (o *Order) MarkRefunded() error {
	if o.State != StateCompleted {
		return ErrOrderNotCompleted
	}
	o.State = StateRefunded
	o.UpdatedAt = time.Now()
	return nil
}

// LineBySKU 返回指定 SKU 的订单行，不存在时返回 nil。
func (o *Order) LineBySKU(sku string) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].SKU == sku {
			return &o.Lines[i]
		}
	}
	return nil
}

// NewOrderNumber 生成人类可读的订单号，例如 ORD-3FA85F6457。
func NewOrderNumber() string {
	return "ORD-" + shortHex(10)
}

// NewInvoiceNumber 生成发票号，例如 INV-3FA85F64。
func NewInvoiceNumber() string {
	return "INV-" + shortHex(8)
}

func shortHex(n int) string {
	h := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(h[:n])
}

// internal/service/returns/domain/return_request.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReturnStatus 定义退货单的生命周期状态。
// 收货和退款之间允许停在 RECEIVED_PENDING_REFUND：货已入库、
// 退款遇到瞬时故障时的可恢复中间态。
type ReturnStatus string

const (
	ReturnRequested             ReturnStatus = "REQUESTED"
	ReturnReceivedPendingRefund ReturnStatus = "RECEIVED_PENDING_REFUND"
	ReturnRefunded              ReturnStatus = "REFUNDED"
	ReturnRejected              ReturnStatus = "REJECTED"
	// ReturnFailed 退款确定性失败后的终态，区别于可重试的中间态，
	// 需要人工对账处理。
	ReturnFailed ReturnStatus = "FAILED"
)

// ReturnRequest 是一张 RMA 退货单。
type ReturnRequest struct {
	ID         int64
	RMANumber  string
	OrderID    int64
	Status     ReturnStatus
	Reason     string
	Lines      []ReturnLine
	CreditNote *CreditNote
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReturnLine 是退货行。UnitAmountCents 是下单时刻的成交单价快照，
// 退款金额从这里算，不看商品目录的现价。
type ReturnLine struct {
	ID              int64
	ReturnID        int64
	SKU             string
	Qty             int
	UnitAmountCents int64
}

// CreditNote 是退款完成后开具的贷记单。
type CreditNote struct {
	ID           int64
	ReturnID     int64
	CreditNoteNo string
	AmountCents  int64
	CreatedAt    time.Time
}

// RefundAmountCents 返回整单应退金额。
func (r *ReturnRequest) RefundAmountCents() int64 {
	var total int64
	for _, l := range r.Lines {
		total += l.UnitAmountCents * int64(l.Qty)
	}
	return total
}

// MarkReceived 收货：只有 REQUESTED 状态允许。
func (r *ReturnRequest) MarkReceived() error {
	if r.Status != ReturnRequested {
		return ErrReturnNotReceivable
	}
	r.Status = ReturnReceivedPendingRefund
	r.UpdatedAt = time.Now()
	return nil
}

// MarkRefunded 退款清算完成。
func (r *ReturnRequest) MarkRefunded() error {
	if r.Status != ReturnReceivedPendingRefund {
		return ErrReturnNotReceivable
	}
	r.Status = ReturnRefunded
	r.UpdatedAt = time.Now()
	return nil
}

// MarkFailed 退款确定性失败。只有货已入库、等待退款的单子会走到这里。
func (r *ReturnRequest) MarkFailed() error {
	if r.Status != ReturnReceivedPendingRefund {
		return ErrReturnNotReceivable
	}
	r.Status = ReturnFailed
	r.UpdatedAt = time.Now()
	return nil
}

// NewRMANumber 生成退货单号，例如 RMA-3FA85F64。
func NewRMANumber() string {
	return "RMA-" + shortHex(8)
}

// NewCreditNoteNumber 生成贷记单号，例如 CN-3FA85F64。
func NewCreditNoteNumber() string {
	return "CN-" + shortHex(8)
}

func shortHex(n int) string {
	h := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(h[:n])
}

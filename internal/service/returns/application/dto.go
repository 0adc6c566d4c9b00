// internal/service/returns/application/dto.go
package application

import (
	"encoding/json"
	"fmt"
)

// ReturnLineSpec 是退货请求里的一行。
type ReturnLineSpec struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// CreateReturnRequest 是创建退货单的请求。
type CreateReturnRequest struct {
	OrderID int64            `json:"orderId"`
	Reason  string           `json:"reason"`
	Lines   []ReturnLineSpec `json:"lines"`
}

// CreateReturnResponse 是创建退货单的结果。
type CreateReturnResponse struct {
	ReturnID  int64  `json:"returnId"`
	RMANumber string `json:"rmaNumber"`
	Status    string `json:"status"`
}

// ReceiveReturnResponse 是收货+退款的结果，也是写进幂等台账的响应体。
type ReceiveReturnResponse struct {
	ReturnID      int64  `json:"returnId"`
	RMANumber     string `json:"rmaNumber"`
	Status        string `json:"status"`
	RefundedCents int64  `json:"refundedCents"`
	CreditNoteNo  string `json:"creditNoteNo,omitempty"`
	RefundID      string `json:"refundId,omitempty"`
	Replayed      bool   `json:"replayed,omitempty"`
}

func receiveResponseToMap(resp *ReceiveReturnResponse) (map[string]interface{}, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal receive response: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal receive response: %w", err)
	}
	return m, nil
}

func receiveResponseFromMap(body map[string]interface{}) (*ReceiveReturnResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger body: %w", err)
	}
	var resp ReceiveReturnResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal ledger body: %w", err)
	}
	return &resp, nil
}

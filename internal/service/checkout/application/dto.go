// internal/service/checkout/application/dto.go
package application

import (
	"encoding/json"
	"fmt"

	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
)

// CheckoutRequest 是下单请求。IdemKey 从 Idempotency-Key 请求头带入。
type CheckoutRequest struct {
	IdemKey       string             `json:"-"`
	CustomerID    *int64             `json:"customerId,omitempty"`
	Items         []domain.ItemSpec  `json:"items"`
	PaymentMethod port.PaymentMethod `json:"paymentMethod"`
}

// CheckoutResponse 是下单结果，同时也是写进幂等台账的响应体：
// 重复请求从台账重放出来的就是这个结构。
type CheckoutResponse struct {
	OrderID     int64              `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	Status      string             `json:"status"`
	TotalCents  int64              `json:"totalCents"`
	InvoiceID   int64              `json:"invoiceId,omitempty"`
	InvoiceNo   string             `json:"invoiceNo,omitempty"`
	Payment     *port.ChargeResult `json:"payment,omitempty"`
	Replayed    bool               `json:"replayed,omitempty"`
}

// responseToMap 把响应转成台账可存的 map。走一次 JSON 往返，
// 保证和 Get 重放出来的形状一致。
func responseToMap(resp *CheckoutResponse) (map[string]interface{}, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout response: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal checkout response: %w", err)
	}
	return m, nil
}

// responseFromMap 从台账记录的响应体还原响应。
func responseFromMap(body map[string]interface{}) (*CheckoutResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger body: %w", err)
	}
	var resp CheckoutResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal ledger body: %w", err)
	}
	return &resp, nil
}

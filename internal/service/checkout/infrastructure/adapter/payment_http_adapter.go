// internal/service/checkout/infrastructure/adapter/payment_http_adapter.go
package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/checkout/domain/port"
)

// HTTPPaymentAdapter 通过 HTTP 调用真实支付网关。
// 402 翻译为明确拒绝，5xx 和网络错误翻译为瞬时错误交给上层重试。
type HTTPPaymentAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPPaymentAdapter(client *httpclient.Client, baseURL string) *HTTPPaymentAdapter {
	return &HTTPPaymentAdapter{client: client, baseURL: baseURL}
}

type chargeRequest struct {
	AmountCents    int64              `json:"amount_cents"`
	Method         port.PaymentMethod `json:"method"`
	IdempotencyKey string             `json:"idempotency_key"`
}

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

func (a *HTTPPaymentAdapter) Charge(ctx context.Context, amountCents int64, method port.PaymentMethod, idemKey string) (*port.ChargeResult, error) {
	var result port.ChargeResult
	err := a.client.PostJSON(ctx, "payment.Charge", a.baseURL+"/v1/charges", &chargeRequest{
		AmountCents:    amountCents,
		Method:         method,
		IdempotencyKey: idemKey,
	}, &result)
	if err != nil {
		return nil, translatePaymentError(err)
	}
	return &result, nil
}

func (a *HTTPPaymentAdapter) Refund(ctx context.Context, transactionID string, amountCents int64) (*port.RefundResult, error) {
	var result port.RefundResult
	err := a.client.PostJSON(ctx, "payment.Refund", a.baseURL+"/v1/refunds", &refundRequest{
		TransactionID: transactionID,
		AmountCents:   amountCents,
	}, &result)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Code < http.StatusInternalServerError {
			return nil, errors.Wrap(port.ErrRefundFailed, err.Error())
		}
		return nil, errors.Wrap(port.ErrPaymentTransient, err.Error())
	}
	return &result, nil
}

func translatePaymentError(err error) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusPaymentRequired:
			return port.ErrPaymentDeclined
		case statusErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", port.ErrPaymentTransient, err)
		default:
			return err
		}
	}
	// 网络层错误当作瞬时故障。
	return fmt.Errorf("%w: %v", port.ErrPaymentTransient, err)
}

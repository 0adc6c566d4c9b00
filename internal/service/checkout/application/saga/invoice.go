// internal/service/checkout/application/saga/invoice.go
package saga

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/service/checkout/domain"
)

// InvoiceHandler 负责开具发票并把订单流转到 COMPLETED。
type InvoiceHandler struct {
	NextHandler
}

func (h *InvoiceHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.IssueInvoice")
	defer span.End()

	invoice := &domain.Invoice{
		OrderID:       checkoutCtx.Order.ID,
		InvoiceNo:     domain.NewInvoiceNumber(),
		TotalCents:    checkoutCtx.Order.TotalCents,
		TransactionID: checkoutCtx.Charge.TransactionID,
		CreatedAt:     time.Now(),
	}
	if err := checkoutCtx.Repo.SaveInvoice(ctx, invoice); err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	checkoutCtx.Order.Invoice = invoice
	checkoutCtx.InvoiceID = invoice.ID

	if err := checkoutCtx.Order.MarkCompleted(); err != nil {
		return err
	}
	if err := checkoutCtx.Repo.UpdateState(ctx, checkoutCtx.Order.ID, domain.StateCompleted); err != nil {
		return fmt.Errorf("mark order completed: %w", err)
	}

	span.SetAttributes(attribute.String("invoice_no", invoice.InvoiceNo))
	span.AddEvent("Invoice issued, order completed")

	return h.executeNext(checkoutCtx)
}

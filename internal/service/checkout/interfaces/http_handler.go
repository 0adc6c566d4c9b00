// internal/service/checkout/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rs/zerolog/log"

	"storefront/internal/service/checkout/application"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
	inventorydomain "storefront/internal/service/inventory/domain"
	ledgerdomain "storefront/internal/service/ledger/domain"
)

const serviceName = "checkout-service"

// CheckoutHandler 封装结算服务的 HTTP 处理器。
type CheckoutHandler struct {
	service   *application.CheckoutService
	inventory inventorydomain.Engine
}

func NewCheckoutHandler(service *application.CheckoutService, inventory inventorydomain.Engine) *CheckoutHandler {
	return &CheckoutHandler{service: service, inventory: inventory}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/checkout", h.placeOrderHandler)
	mux.HandleFunc("/orders/", h.getOrderHandler)
	mux.HandleFunc("/inventory/availability", h.availabilityHandler)
}

func (h *CheckoutHandler) placeOrderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "http.PlaceOrder")
	defer span.End()

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.IdemKey = r.Header.Get("Idempotency-Key")
	span.SetAttributes(attribute.String("idem_key", req.IdemKey))

	resp, err := h.service.PlaceOrder(ctx, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Replayed {
		w.Header().Set("Idempotency-Replayed", "true")
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *CheckoutHandler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/orders/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	// 这里直接查仓储意义不大，走应用服务保持一致的追踪语义。
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

func (h *CheckoutHandler) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	if sku == "" {
		http.Error(w, "sku is required", http.StatusBadRequest)
		return
	}
	qty, err := h.inventory.AvailableQuantity(r.Context(), sku)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sku": sku, "available": qty})
}

// writeDomainError 把领域错误翻译为 HTTP 状态码。
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, inventorydomain.ErrSKUNotFound), errors.Is(err, domain.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, inventorydomain.ErrInsufficientStock):
		status = http.StatusConflict
	case errors.Is(err, ledgerdomain.ErrDuplicateInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInventoryRace):
		status = http.StatusConflict
	case errors.Is(err, port.ErrPaymentDeclined):
		status = http.StatusPaymentRequired
	case errors.Is(err, port.ErrPaymentTransient):
		status = http.StatusBadGateway
	case errors.Is(err, inventorydomain.ErrLockTimeout):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

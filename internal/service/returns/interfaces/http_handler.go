// internal/service/returns/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	checkoutdomain "storefront/internal/service/checkout/domain"
	checkoutport "storefront/internal/service/checkout/domain/port"
	ledgerdomain "storefront/internal/service/ledger/domain"
	"storefront/internal/service/returns/application"
	"storefront/internal/service/returns/domain"
)

// ReturnsHandler 封装退货服务的 HTTP 处理器。
type ReturnsHandler struct {
	service *application.ReturnService
}

func NewReturnsHandler(service *application.ReturnService) *ReturnsHandler {
	return &ReturnsHandler{service: service}
}

func (h *ReturnsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/returns", h.createReturnHandler)
	mux.HandleFunc("/returns/", h.returnSubresourceHandler)
}

func (h *ReturnsHandler) createReturnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req application.CreateReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.service.CreateReturn(r.Context(), &req)
	if err != nil {
		writeReturnsError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// returnSubresourceHandler 处理 GET /returns/{id} 和 POST /returns/{id}/receive。
func (h *ReturnsHandler) returnSubresourceHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/returns/")

	if idStr, ok := strings.CutSuffix(path, "/receive"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid return id", http.StatusBadRequest)
			return
		}
		resp, err := h.service.ReceiveReturn(r.Context(), id, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeReturnsError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if resp.Replayed {
			w.Header().Set("Idempotency-Replayed", "true")
		}
		json.NewEncoder(w).Encode(resp)
		return
	}

	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		http.Error(w, "invalid return id", http.StatusBadRequest)
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		writeReturnsError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ret)
}

func writeReturnsError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrReturnValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrReturnNotFound), errors.Is(err, checkoutdomain.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrReturnNotReceivable):
		status = http.StatusConflict
	case errors.Is(err, ledgerdomain.ErrDuplicateInProgress):
		status = http.StatusConflict
	case errors.Is(err, checkoutport.ErrPaymentTransient), errors.Is(err, checkoutport.ErrRefundFailed):
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

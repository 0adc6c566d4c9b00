// internal/service/fulfilment/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	checkoutport "storefront/internal/service/checkout/domain/port"
	"storefront/internal/service/fulfilment/application"
	"storefront/internal/service/fulfilment/domain"
)

// FulfilmentHandler 封装仓库工作台的 HTTP 处理器。
type FulfilmentHandler struct {
	service *application.FulfilmentService
}

func NewFulfilmentHandler(service *application.FulfilmentService) *FulfilmentHandler {
	return &FulfilmentHandler{service: service}
}

func (h *FulfilmentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/fulfilment/tasks", h.listPendingHandler)
	mux.HandleFunc("/fulfilment/tasks/", h.packHandler)
}

func (h *FulfilmentHandler) listPendingHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tasks, err := h.service.ListPendingTasks(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tasks)
}

type packRequest struct {
	Address checkoutport.Address `json:"address"`
	Parcel  checkoutport.Parcel  `json:"parcel"`
}

// packHandler 处理 POST /fulfilment/tasks/{id}/pack。
func (h *FulfilmentHandler) packHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/fulfilment/tasks/")
	idStr, ok := strings.CutSuffix(path, "/pack")
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	var req packRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	shipment, err := h.service.MarkPackedAndBook(r.Context(), id, req.Address, req.Parcel)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrTaskNotPending):
			status = http.StatusConflict
		case errors.Is(err, checkoutport.ErrBookingFailed):
			status = http.StatusBadGateway
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(shipment)
}

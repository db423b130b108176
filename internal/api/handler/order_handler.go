package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-lab/canteen/internal/api"
	"github.com/oapi-lab/canteen/internal/api/dto"
	"github.com/oapi-lab/canteen/internal/api/middleware"
	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/service"
)

type OrderHandler struct {
	orderService service.IOrderService
}

func NewOrderHandler(orderService service.IOrderService) *OrderHandler {
	if orderService == nil {
		panic("orderService cannot be nil")
	}
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// 客戶只能看自己的訂單
	if order.CustomerID != actor.ID && !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	api.SuccessJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	orders, err := h.orderService.GetOrdersByCustomerID(r.Context(), actor.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	if !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	orders, err := h.orderService.GetOrdersByStatus(r.Context(), model.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	if !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	orders, total, err := h.orderService.ListOrders(r.Context(), page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
	})
}

func (h *OrderHandler) MyStats(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	stats, err := h.orderService.GetCustomerStats(r.Context(), actor.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, stats)
}

func (h *OrderHandler) GetStatusHistory(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	orderNumber := chi.URLParam(r, "orderNumber")
	order, err := h.orderService.GetOrder(r.Context(), orderNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if order.CustomerID != actor.ID && !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	history, err := h.orderService.GetStatusHistory(r.Context(), orderNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, history)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOrderStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	order, err := h.orderService.UpdateStatus(r.Context(), chi.URLParam(r, "orderNumber"), model.OrderStatus(req.Status), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) AssignOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.AssignOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	order, err := h.orderService.AssignOrder(r.Context(), chi.URLParam(r, "orderNumber"), req.AssigneeID, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	order, err := h.orderService.CancelOrder(r.Context(), chi.URLParam(r, "orderNumber"), req.Reason, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req dto.AddOrderItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	order, err := h.orderService.AddItem(r.Context(), chi.URLParam(r, "orderNumber"), req.MenuItemID, req.Quantity, req.SpecialInstructions, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	order, err := h.orderService.RemoveItem(r.Context(), chi.URLParam(r, "orderNumber"), chi.URLParam(r, "menuItemID"), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, order)
}
